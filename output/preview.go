package output

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
)

const (
	DefaultPalette = "blue,cyan,yellow,orange,red"
	previewWidth   = 512
	legendHeight   = 40
)

var namedColors = map[string]color.RGBA{
	"black":   {R: 0, G: 0, B: 0, A: 255},
	"white":   {R: 255, G: 255, B: 255, A: 255},
	"gray":    {R: 128, G: 128, B: 128, A: 255},
	"red":     {R: 255, G: 0, B: 0, A: 255},
	"green":   {R: 0, G: 128, B: 0, A: 255},
	"lime":    {R: 0, G: 255, B: 0, A: 255},
	"blue":    {R: 0, G: 0, B: 255, A: 255},
	"cyan":    {R: 0, G: 255, B: 255, A: 255},
	"yellow":  {R: 255, G: 255, B: 0, A: 255},
	"orange":  {R: 255, G: 165, B: 0, A: 255},
	"magenta": {R: 255, G: 0, B: 255, A: 255},
	"purple":  {R: 128, G: 0, B: 128, A: 255},
	"brown":   {R: 165, G: 42, B: 42, A: 255},
}

// ParsePalette reads a comma separated list of colour names or hex codes
// ("#rrggbb" or "rrggbb").
func ParsePalette(s string) ([]color.RGBA, error) {
	var palette []color.RGBA
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if c, ok := namedColors[name]; ok {
			palette = append(palette, c)
			continue
		}
		c, err := parseHex(name)
		if err != nil {
			return nil, err
		}
		palette = append(palette, c)
	}
	if len(palette) == 0 {
		return nil, fmt.Errorf("palette %q has no colours", s)
	}
	return palette, nil
}

func parseHex(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// ColorAt interpolates linearly between the palette stops; norm is in [0, 1].
func ColorAt(palette []color.RGBA, norm float64) color.RGBA {
	if len(palette) == 1 {
		return palette[0]
	}
	pos := norm * float64(len(palette)-1)
	i := int(math.Floor(pos))
	if i >= len(palette)-1 {
		return palette[len(palette)-1]
	}
	if i < 0 {
		return palette[0]
	}
	frac := pos - float64(i)
	from, to := palette[i], palette[i+1]
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*frac))
	}
	return color.RGBA{R: lerp(from.R, to.R), G: lerp(from.G, to.G), B: lerp(from.B, to.B), A: 255}
}

// CreatePercentilePreview renders band of img between visMin and visMax
// with a colour bar underneath. Masked pixels stay transparent.
func CreatePercentilePreview(img *raster.Image, band string, visMin, visMax float64, palette []color.RGBA, path string) error {
	values, err := img.Band(band)
	if err != nil {
		return err
	}
	if len(palette) == 0 {
		return fmt.Errorf("empty palette")
	}
	if img.Width == 0 || img.Height == 0 {
		return fmt.Errorf("image %s has no pixels", img.ID)
	}

	s := 1
	if img.Width < previewWidth {
		s = previewWidth / img.Width
	}
	width, height := img.Width*s, img.Height*s

	pixels := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := img.Index(x/s, y/s)
			if !img.ValidAt(i) || math.IsNaN(values[i]) {
				continue
			}
			pixels.SetRGBA(x, y, ColorAt(palette, normalize(values[i], visMin, visMax)))
		}
	}

	dc := gg.NewContext(width, height+legendHeight)
	dc.DrawImage(pixels, 0, 0)
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(0, float64(height), float64(width), legendHeight)
	dc.Fill()

	// Colour bar
	barX, barY := 10.0, float64(height)+6
	barWidth := float64(width) - 20
	for i := 0; i < int(barWidth); i++ {
		dc.SetColor(ColorAt(palette, float64(i)/barWidth))
		dc.DrawRectangle(barX+float64(i), barY, 1, 12)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawRectangle(barX, barY, barWidth, 12)
	dc.Stroke()
	dc.DrawStringAnchored(strconv.FormatFloat(visMin, 'f', -1, 64), barX, barY+26, 0, 0.5)
	dc.DrawStringAnchored(strconv.FormatFloat(visMax, 'f', -1, 64), barX+barWidth, barY+26, 1, 0.5)

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create result folder: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}
