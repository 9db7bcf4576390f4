package export

import (
	"os"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/models"
)

const csvTimeLayout = "2006-01-02 15:04:05"

// barRecord matches the columns read back by the csv source.
type barRecord struct {
	Date   string  `csv:"Date"`
	Open   float64 `csv:"Open"`
	High   float64 `csv:"High"`
	Low    float64 `csv:"Low"`
	Close  float64 `csv:"Close"`
	Volume int64   `csv:"Volume"`
}

// layerRecord is one table row; empty cells are absent prices.
type layerRecord struct {
	Date string `csv:"Date"`
	High string `csv:"High"`
	Low  string `csv:"Low"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(csvTimeLayout)
}

func formatPrice(p chanlun.NullPrice) string {
	if !p.Valid {
		return ""
	}
	return strconv.FormatFloat(p.Value, 'f', -1, 64)
}

func writeBarsCSV(path string, bars []models.Candle) error {
	records := make([]*barRecord, len(bars))
	for i, b := range bars {
		records[i] = &barRecord{
			Date:   formatTime(b.Timestamp),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return writeCSV(path, &records)
}

func writeTableCSV(path string, t chanlun.Table) error {
	records := make([]*layerRecord, len(t))
	for i, row := range t {
		records[i] = &layerRecord{
			Date: formatTime(row.Timestamp),
			High: formatPrice(row.High),
			Low:  formatPrice(row.Low),
		}
	}
	return writeCSV(path, &records)
}

func writeCSV(path string, records interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(records, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
