package output

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"github.com/forest-guardian/vegetation-indices/internal/plots"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/forest-guardian/vegetation-indices/internal/zonal"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoChartData = errors.New("no zonal means to plot")

// CreateIndexChart draws one line per plot with its zonal mean over time.
// Records without a mean are left out of the lines.
func CreateIndexChart(records []zonal.Record, index, path string) error {
	series := map[string]plotter.XYs{}
	for _, rec := range records {
		if rec.Mean == nil {
			continue
		}
		series[rec.UID] = append(series[rec.UID], plotter.XY{
			X: float64(rec.Time().Unix()),
			Y: *rec.Mean,
		})
	}
	if len(series) == 0 {
		return ErrNoChartData
	}

	uids := make([]string, 0, len(series))
	for uid := range series {
		uids = append(uids, uid)
	}
	plots.SortUIDs(uids)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s zonal mean per plot", index)
	p.X.Label.Text = "Date"
	p.Y.Label.Text = index
	p.X.Tick.Marker = plot.TimeTicks{Format: raster.DateLayout}
	p.Add(plotter.NewGrid())

	colors := generateColors(len(uids))
	for i, uid := range uids {
		pts := series[uid]
		sort.Slice(pts, func(a, b int) bool { return pts[a].X < pts[b].X })

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build line for plot %s: %w", uid, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(uid, line)
	}
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create result folder: %w", err)
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return nil
}

// generateColors spreads n hues evenly around the colour wheel.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	r := hueToRGB(p, q, h+1.0/3)
	g := hueToRGB(p, q, h)
	b := hueToRGB(p, q, h-1.0/3)
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}
