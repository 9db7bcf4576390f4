package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chanlun/internal/errors"
	"chanlun/internal/models"
	"chanlun/pkg/utils"
)

const defaultYahooURL = "https://query1.finance.yahoo.com"

// YahooConfig configures the Yahoo Finance chart fetcher.
type YahooConfig struct {
	BaseURL    string
	Proxy      string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	Retries    int
	// Ranges maps each interval to the history range requested for it.
	Ranges map[models.Interval]string
}

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	retry   utils.RetryConfig
	ranges  map[models.Interval]string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(cfg YahooConfig) *YahooFetcher {
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultYahooURL
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Retries + 1
	retry.Retryable = retryable

	return &YahooFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, burst),
		retry:   retry,
		ranges:  cfg.Ranges,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// retryable retries transport failures, throttling and server errors.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *errors.FetchError
	if errors.As(err, &fe) && fe.Status != 0 {
		return fe.Status == http.StatusTooManyRequests || fe.Status >= 500
	}
	return true
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchBars downloads the configured history range for the interval.
func (f *YahooFetcher) FetchBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error) {
	rng, ok := f.ranges[interval]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrIntervalNotConfigured, interval)
	}

	return utils.RetryWithResult(ctx, f.retry, func() ([]models.Candle, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return f.fetchChart(ctx, symbol, interval, rng)
	})
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, interval models.Interval, rng string) ([]models.Candle, error) {
	fail := func(status int, err error) error {
		return errors.NewFetchError(f.Name(), symbol, string(interval), status, err)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.baseURL, url.PathEscape(symbol), url.QueryEscape(string(interval)), url.QueryEscape(rng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fail(0, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(0, fmt.Errorf("read body: %w", err))
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fail(resp.StatusCode, errors.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fail(resp.StatusCode, errors.ErrSymbolNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", truncate(body, 200)))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fail(0, fmt.Errorf("decode: %w", err))
	}
	if chart.Chart.Error != nil {
		return nil, fail(0, fmt.Errorf("api error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fail(0, errors.ErrDataNotFound)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]models.Candle, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue // skip null bars (holidays, halts)
		}
		var volume int64
		if v := at(quote.Volume, i); v != nil {
			volume = int64(*v)
		}
		bars = append(bars, models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *o,
			High:      *h,
			Low:       *l,
			Close:     *c,
			Volume:    volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
