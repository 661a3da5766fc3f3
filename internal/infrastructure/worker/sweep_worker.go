package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/sweeper"
)

// SweepWorker periodically runs the overdue sweep. Each run is
// self-contained, so a missed tick or a crash mid-run only delays
// flagging until the next interval.
type SweepWorker struct {
	sweeper  sweeper.Sweeper
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
}

// NewSweepWorker creates a sweep worker running at the given interval
func NewSweepWorker(s sweeper.Sweeper, interval time.Duration, logger *zap.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepWorker{
		sweeper:  s,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the sweep loop
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("sweep worker is already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true

	w.logger.Info("SweepWorker started", zap.Duration("interval", w.interval))

	go w.loop(ctx)
	return nil
}

// Stop stops the sweep loop
func (w *SweepWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return nil
	}

	w.isRunning = false
	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("SweepWorker stopped")
	return nil
}

// Name returns the worker name for identification
func (w *SweepWorker) Name() string {
	return "SweepWorker"
}

func (w *SweepWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sweep immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Sweep loop context cancelled")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := w.sweeper.RunOnce(ctx, time.Now()); err != nil {
		w.logger.Error("Overdue sweep failed", zap.Error(err))
	}
}
