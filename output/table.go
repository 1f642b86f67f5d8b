package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/forest-guardian/vegetation-indices/internal/seasonal"
)

// PrintSeasonalTable prints the seasonal maxima as aligned columns.
func PrintSeasonalTable(w io.Writer, records []seasonal.MaxRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "uid\tmax_mean\tmax_date")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%.4f\t%s\n", rec.UID, rec.MaxMean, rec.MaxDate)
	}
	fmt.Fprintf(tw, "(%d plots)\n", len(records))
	return tw.Flush()
}
