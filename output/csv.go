package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forest-guardian/vegetation-indices/internal/seasonal"
	"github.com/forest-guardian/vegetation-indices/internal/zonal"
	"github.com/gocarina/gocsv"
)

// CreateSeasonalCSV writes uid,max_mean,max_date rows. An empty result
// still produces the header line.
func CreateSeasonalCSV(records []seasonal.MaxRecord, path string) error {
	if records == nil {
		records = []seasonal.MaxRecord{}
	}
	return writeCSV(&records, path)
}

// CreateZonalCSV writes every per-date record. Plots without valid pixels
// keep an empty mean column.
func CreateZonalCSV(records []zonal.Record, path string) error {
	if records == nil {
		records = []zonal.Record{}
	}
	return writeCSV(&records, path)
}

var createFile = func(path string) (io.WriteCloser, error) { return os.Create(path) }

func writeCSV(in interface{}, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create result folder: %w", err)
	}

	file, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}

	if err := gocsv.Marshal(in, file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write csv file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close csv file: %w", err)
	}
	return nil
}
