package refresher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/filevars/webui/internal/sentry"
)

// MinInterval is the shortest allowed tick period.
const MinInterval = time.Second

// Refresher is what the worker keeps warm.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (bool, error)
}

// Options configures a Worker.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *Metrics
	// OnError is called for every failed tick. Defaults to reporting to
	// Sentry.
	OnError func(error)
}

// Worker calls Refresh(false) once at start and then on every tick.
type Worker struct {
	target   Refresher
	interval time.Duration
	log      *slog.Logger
	metrics  *Metrics
	onError  func(error)

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a stopped worker.
func New(target Refresher, opts Options) *Worker {
	interval := opts.Interval
	if interval < MinInterval {
		interval = MinInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	onError := opts.OnError
	if onError == nil {
		onError = func(err error) {
			sentry.CaptureError(err, map[string]string{"component": "refresher"}, nil)
		}
	}
	return &Worker{
		target:   target,
		interval: interval,
		log:      log.With("component", "refresher"),
		metrics:  opts.Metrics,
		onError:  onError,
	}
}

// Interval returns the effective tick period.
func (w *Worker) Interval() time.Duration {
	return w.interval
}

// Start launches the loop. Calling Start on a running worker does nothing.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.run(ctx, w.stopCh)
	w.log.Info("refresher started", "interval", w.interval.String())
}

// Stop signals the loop and waits for the in-flight tick to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("refresher stopped")
}

func (w *Worker) run(ctx context.Context, stopCh chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one refresh and returns its outcome label. Failures are
// logged, counted and reported; they never stop the loop. A canceled
// refresh counts as skipped.
func (w *Worker) Tick(ctx context.Context) string {
	start := time.Now()
	refreshed, err := w.target.Refresh(ctx, false)
	elapsed := time.Since(start)

	result := ResultSkipped
	switch {
	case errors.Is(err, context.Canceled):
		w.log.Debug("refresh canceled", "duration_ms", elapsed.Milliseconds())
	case err != nil:
		result = ResultError
		w.log.Error("refresh failed", "error", err, "duration_ms", elapsed.Milliseconds())
		w.onError(err)
	case refreshed:
		result = ResultUpdated
		w.log.Info("group tree refreshed", "duration_ms", elapsed.Milliseconds())
	default:
		w.log.Debug("group tree unchanged", "duration_ms", elapsed.Milliseconds())
	}
	w.metrics.observe(result, elapsed.Seconds())
	return result
}
