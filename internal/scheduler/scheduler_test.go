package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/athebyme/gomarket-sync/internal/adapters/logger"
)

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) SyncAll(ctx context.Context) error {
	r.runs.Add(1)
	return nil
}

func TestSchedulerRunsPeriodically(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, 20*time.Millisecond, 0, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return runner.runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSchedulerStartupDelay(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, time.Hour, 50*time.Millisecond, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), runner.runs.Load(), "до истечения задержки запусков быть не должно")

	assert.Eventually(t, func() bool {
		return runner.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSchedulerStopsDuringStartupDelay(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, time.Hour, time.Hour, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("планировщик не остановился по отмене контекста")
	}
	assert.Equal(t, int32(0), runner.runs.Load())
}
