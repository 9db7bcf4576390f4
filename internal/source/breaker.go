package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chanlun/internal/errors"
	"chanlun/internal/models"
)

// BreakerState is the state of a provider circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"    // Normal operation
	BreakerOpen     BreakerState = "OPEN"      // Provider failing, fetches rejected
	BreakerHalfOpen BreakerState = "HALF_OPEN" // One probe fetch allowed
)

// ErrProviderUnavailable is returned while the breaker is open.
var ErrProviderUnavailable = fmt.Errorf("%w: provider unavailable", errors.ErrFetchFailed)

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive provider failures that
	// opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before a probe.
	Cooldown time.Duration
}

// BreakerFetcher stops calling a provider that keeps failing. Failures that
// concern one symbol, such as an unknown ticker or a missing history file,
// do not count against the provider.
type BreakerFetcher struct {
	next   Fetcher
	config BreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probing     bool
	rejected    int64
	lastFailure error
}

// WithBreaker wraps f with a circuit breaker.
func WithBreaker(f Fetcher, config BreakerConfig) *BreakerFetcher {
	if config.Cooldown <= 0 {
		config.Cooldown = time.Minute
	}
	return &BreakerFetcher{
		next:   f,
		config: config,
		now:    time.Now,
		state:  BreakerClosed,
	}
}

func (b *BreakerFetcher) Name() string { return b.next.Name() }

// FetchBars fetches through the breaker.
func (b *BreakerFetcher) FetchBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error) {
	if err := b.allow(); err != nil {
		return nil, errors.NewFetchError(b.Name(), symbol, string(interval), 0, err)
	}

	bars, err := b.next.FetchBars(ctx, symbol, interval)
	b.record(ctx, err)
	return bars, err
}

func (b *BreakerFetcher) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return ErrProviderUnavailable
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			b.rejected++
			return ErrProviderUnavailable
		}
		b.probing = true
	}
	return nil
}

func (b *BreakerFetcher) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == BreakerHalfOpen
	b.probing = false

	// A cancelled fetch says nothing about the provider.
	if ctx.Err() != nil {
		if wasProbe {
			b.state = BreakerOpen
		}
		return
	}

	if !providerFailure(err) {
		b.failures = 0
		if wasProbe {
			b.state = BreakerClosed
		}
		return
	}

	b.lastFailure = err
	if wasProbe {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.config.FailureThreshold {
		b.trip()
	}
}

func (b *BreakerFetcher) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
}

// providerFailure reports whether err says the provider itself is unhealthy.
func providerFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, errors.ErrSymbolNotFound) &&
		!errors.Is(err, errors.ErrDataNotFound) &&
		!errors.Is(err, errors.ErrIntervalNotConfigured)
}

// State returns the current breaker state.
func (b *BreakerFetcher) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats holds breaker statistics.
type BreakerStats struct {
	State       BreakerState
	Failures    int
	Rejected    int64
	OpenedAt    time.Time
	LastFailure error
}

// Stats returns breaker statistics.
func (b *BreakerFetcher) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:       b.state,
		Failures:    b.failures,
		Rejected:    b.rejected,
		OpenedAt:    b.openedAt,
		LastFailure: b.lastFailure,
	}
}

// Reset closes the breaker.
func (b *BreakerFetcher) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}
