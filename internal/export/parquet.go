package export

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/models"
)

type barParquetRecord struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Volume    int64   `parquet:"name=volume, type=INT64"`
}

type layerParquetRecord struct {
	Timestamp int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	High      *float64 `parquet:"name=high, type=DOUBLE, repetitiontype=OPTIONAL"`
	Low       *float64 `parquet:"name=low, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func writeBarsParquet(path string, bars []models.Candle) error {
	records := make([]interface{}, len(bars))
	for i, b := range bars {
		records[i] = barParquetRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return writeParquet(path, new(barParquetRecord), records)
}

func writeTableParquet(path string, t chanlun.Table) error {
	records := make([]interface{}, len(t))
	for i, row := range t {
		records[i] = layerParquetRecord{
			Timestamp: row.Timestamp.UnixMilli(),
			High:      row.High.Ptr(),
			Low:       row.Low.Ptr(),
		}
	}
	return writeParquet(path, new(layerParquetRecord), records)
}

func writeParquet(path string, schema interface{}, records []interface{}) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return fw.Close()
}
