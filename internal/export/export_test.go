package export

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/config"
	"chanlun/internal/engine"
	"chanlun/internal/errors"
	"chanlun/internal/models"
	"chanlun/internal/source"
)

func testView() *engine.View {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Candle, 5)
	for i := range bars {
		p := 10 + float64(i)
		bars[i] = models.Candle{Timestamp: start.AddDate(0, 0, i), Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 100}
	}
	return &engine.View{
		Symbol:   "AAPL",
		Interval: "1d",
		Bars:     bars,
		Tables: map[analysis.Layer]chanlun.Table{
			analysis.LayerStroke: {
				{Timestamp: bars[1].Timestamp, High: chanlun.Price(12)},
				{Timestamp: bars[3].Timestamp, Low: chanlun.Price(11.5)},
			},
		},
	}
}

type recordingUploader struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingUploader) Upload(ctx context.Context, key, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func TestExporter_CSV(t *testing.T) {
	dir := t.TempDir()
	up := &recordingUploader{}
	ex, err := New(dir, FormatCSV, up, zerolog.Nop())
	require.NoError(t, err)

	written, err := ex.Export(context.Background(), testView())
	require.NoError(t, err)
	assert.Len(t, written, 1+len(analysis.Layers))
	assert.Len(t, up.keys, len(written))
	assert.Contains(t, up.keys, "AAPL/stroke_1d.csv")

	data, err := os.ReadFile(filepath.Join(dir, "AAPL", FileName(analysis.LayerStroke, "1d", FormatCSV)))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{
		"Date,High,Low",
		"2024-01-03 00:00:00,12,",
		"2024-01-05 00:00:00,,11.5",
	}, lines)

	// The exported history is readable by the csv source.
	bars, err := source.NewCSVFetcher(dir).FetchBars(context.Background(), "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, testView().Bars, bars)
}

func TestExporter_Parquet(t *testing.T) {
	dir := t.TempDir()
	ex, err := New(dir, FormatParquet, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = ex.Export(context.Background(), testView())
	require.NoError(t, err)

	fr, err := local.NewLocalFileReader(filepath.Join(dir, "AAPL", "stroke_1d.parquet"))
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(layerParquetRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(2), pr.GetNumRows())
	rows := make([]layerParquetRecord, 2)
	require.NoError(t, pr.Read(&rows))

	require.NotNil(t, rows[0].High)
	assert.Equal(t, 12.0, *rows[0].High)
	assert.Nil(t, rows[0].Low)
	assert.Nil(t, rows[1].High)
	assert.Equal(t, testView().Bars[3].Timestamp.UnixMilli(), rows[1].Timestamp)
}

func TestNew_UnsupportedFormat(t *testing.T) {
	_, err := New(t.TempDir(), "xlsx", nil, zerolog.Nop())
	assert.ErrorIs(t, err, errors.ErrUnsupportedFormat)
}

func TestS3Uploader_Upload(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		body = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "stroke_1d.csv")
	require.NoError(t, os.WriteFile(file, []byte("Date,High,Low\n"), 0644))

	up, err := NewS3Uploader(context.Background(), config.S3Config{
		Enabled:   true,
		Bucket:    "charts",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		Prefix:    "chanlun",
		PathStyle: true,
	}, config.S3Credentials{AccessKeyID: "key", SecretAccessKey: "secret"})
	require.NoError(t, err)

	require.NoError(t, up.Upload(context.Background(), "AAPL/stroke_1d.csv", file))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PUT /charts/chanlun/AAPL/stroke_1d.csv"}, paths)
	assert.Contains(t, body, "Date,High,Low")
}

func TestNewS3Uploader_Disabled(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), config.S3Config{}, config.S3Credentials{})
	assert.Error(t, err)
}
