package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OrderSyncer is the part of the service the worker drives.
type OrderSyncer interface {
	SyncOrders(ctx context.Context) error
}

// FillWorker periodically polls open orders so executions reach the strategies.
type FillWorker struct {
	service  OrderSyncer
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	lastSync time.Time
	lastErr  error
}

func NewFillWorker(service OrderSyncer, interval time.Duration, logger *zap.Logger) *FillWorker {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FillWorker{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the polling loop until ctx is cancelled. The returned channel is
// closed when the loop has exited.
func (w *FillWorker) Start(ctx context.Context) <-chan struct{} {
	w.logger.Info("Starting fill worker", zap.Duration("interval", w.interval))
	done := make(chan struct{})
	ticker := time.NewTicker(w.interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		// Run immediately first time
		w.sync(ctx)
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Fill worker stopped")
				return
			case <-ticker.C:
				w.sync(ctx)
			}
		}
	}()
	return done
}

func (w *FillWorker) sync(ctx context.Context) {
	err := w.service.SyncOrders(ctx)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("Worker: order sync failed", zap.Error(err))
	}

	w.mu.Lock()
	w.lastSync = time.Now()
	w.lastErr = err
	w.mu.Unlock()
}

// LastSync reports when orders were last polled and the error of that poll.
func (w *FillWorker) LastSync() (time.Time, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastSync, w.lastErr
}
