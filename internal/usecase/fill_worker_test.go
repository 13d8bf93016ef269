package usecase_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vitos/turtle_trader/internal/usecase"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (c *countingSyncer) SyncOrders(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestFillWorker_PollsUntilCancelled(t *testing.T) {
	syncer := &countingSyncer{}
	w := usecase.NewFillWorker(syncer, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := w.Start(ctx)

	assert.Eventually(t, func() bool { return syncer.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	stopped := syncer.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, syncer.calls.Load(), "no polls after stop")

	last, err := w.LastSync()
	assert.False(t, last.IsZero())
	assert.NoError(t, err)
}

func TestFillWorker_RecordsError(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("venue timeout")}
	w := usecase.NewFillWorker(syncer, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	assert.Eventually(t, func() bool {
		_, err := w.LastSync()
		return err != nil
	}, time.Second, time.Millisecond)
}
