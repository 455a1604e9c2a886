/*
warmer.go - Background refresh of cached collections

PURPOSE:
  Periodically touches every registered collection so that stale data is
  refetched in the background instead of on the next user request.

DESIGN:
  - One goroutine, driven by a ticker (default interval: 1 minute)
  - Calls Warm on each target; fresh targets return without I/O
  - Failures are logged and never stop the loop

USAGE:
  w := cache.NewWarmer(stores.All(), logger)
  w.Start()
  // ... later
  w.Stop()
*/
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultWarmInterval is how often the warmer checks its targets.
const DefaultWarmInterval = time.Minute

// Target is anything the warmer can keep fresh.
type Target interface {
	Name() string
	Warm(ctx context.Context) error
}

// Warmer keeps collections fresh in the background.
type Warmer struct {
	Interval time.Duration
	Enabled  bool

	targets []Target
	logger  zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWarmer creates a warmer for targets.
func NewWarmer(targets []Target, logger zerolog.Logger) *Warmer {
	return &Warmer{
		Interval: DefaultWarmInterval,
		Enabled:  true,
		targets:  targets,
		logger:   logger,
	}
}

// Start begins warming. Calling Start on a running warmer is a no-op.
func (w *Warmer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.Enabled {
		w.logger.Info().Msg("cache warmer disabled, not starting")
		return
	}
	if w.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.stop = make(chan struct{})
	w.ticker = time.NewTicker(w.Interval)
	w.wg.Add(1)

	go w.run(ctx, w.ticker.C, w.stop)

	w.logger.Info().Dur("interval", w.Interval).Int("targets", len(w.targets)).Msg("cache warmer started")
}

// Stop halts the warmer and waits for the current pass to return.
func (w *Warmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ticker == nil {
		return
	}
	w.ticker.Stop()
	close(w.stop)
	w.cancel()
	w.wg.Wait()
	w.ticker = nil
	w.logger.Info().Msg("cache warmer stopped")
}

func (w *Warmer) run(ctx context.Context, tick <-chan time.Time, stop <-chan struct{}) {
	defer w.wg.Done()

	// Warm immediately on start
	w.WarmAll(ctx)

	for {
		select {
		case <-tick:
			w.WarmAll(ctx)
		case <-stop:
			return
		}
	}
}

// WarmAll runs one pass over every target.
func (w *Warmer) WarmAll(ctx context.Context) {
	for _, t := range w.targets {
		if err := t.Warm(ctx); err != nil {
			w.logger.Warn().Err(err).Str("store", t.Name()).Msg("cache warm failed")
		}
	}
}
