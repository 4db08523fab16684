package scheduler

import (
	"context"
	"time"

	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// SyncRunner часть движка синхронизации, которую запускает планировщик
type SyncRunner interface {
	SyncAll(ctx context.Context) error
}

// Scheduler периодически запускает синхронизацию всех компаний.
// Первый запуск откладывается на startupDelay, чтобы дать зависимостям подняться.
type Scheduler struct {
	runner       SyncRunner
	interval     time.Duration
	startupDelay time.Duration
	logger       interfaces.LoggerPort
}

// New создает планировщик синхронизации
func New(runner SyncRunner, interval, startupDelay time.Duration, logger interfaces.LoggerPort) *Scheduler {
	return &Scheduler{
		runner:       runner,
		interval:     interval,
		startupDelay: startupDelay,
		logger:       logger,
	}
}

// Run блокирует до отмены контекста, запуская синхронизацию каждые interval.
// Движок сам не допускает пересечения запусков по одной компании, поэтому
// затянувшийся цикл не ломает следующий тик.
func (s *Scheduler) Run(ctx context.Context) {
	if s.startupDelay > 0 {
		s.logger.Info("Ожидание перед первым запуском синхронизации",
			interfaces.LogField{Key: "delay", Value: s.startupDelay.String()})

		select {
		case <-time.After(s.startupDelay):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Планировщик синхронизации остановлен")
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()

	if err := s.runner.SyncAll(ctx); err != nil {
		s.logger.ErrorWithContext(ctx, "Ошибка цикла синхронизации",
			interfaces.LogField{Key: "error", Value: err.Error()})
		return
	}

	s.logger.InfoWithContext(ctx, "Цикл синхронизации завершен",
		interfaces.LogField{Key: "duration", Value: time.Since(start).String()})
}
