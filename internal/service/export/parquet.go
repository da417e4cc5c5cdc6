package export

import (
	"fmt"

	"candlestick/internal/domain/models"

	"github.com/parquet-go/parquet-go"
)

// Row is the on-disk layout of one exported bar.
type Row struct {
	Timestamp  int64   `parquet:"timestamp"`
	Resolution string  `parquet:"resolution,dict"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
}

// Rows converts bars to export rows, keeping their order.
func Rows(bars []*models.Bar) []Row {
	rows := make([]Row, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, Row{
			Timestamp:  b.Timestamp,
			Resolution: b.Resolution,
			Open:       b.Open.InexactFloat64(),
			High:       b.High.InexactFloat64(),
			Low:        b.Low.InexactFloat64(),
			Close:      b.Close.InexactFloat64(),
			Volume:     b.Volume,
		})
	}
	return rows
}

// WriteParquet writes bars to a parquet file at path.
func WriteParquet(path string, bars []*models.Bar) error {
	if err := parquet.WriteFile(path, Rows(bars)); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// ReadParquet loads a file written by WriteParquet.
func ReadParquet(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
