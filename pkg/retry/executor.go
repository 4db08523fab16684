package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/athebyme/gomarket-sync/pkg/dto"
	"github.com/athebyme/gomarket-sync/pkg/interfaces"
)

// NonRetryableError постоянная ошибка API, при которой повторы прекращаются немедленно
type NonRetryableError struct {
	Identity string // идентификатор операции (товар, отправление)
	Code     string
	Message  string
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("постоянная ошибка API для %s: %s (%s)", e.Identity, e.Code, e.Message)
}

// ExhaustedError бюджет повторов исчерпан
type ExhaustedError struct {
	Identity string
	Attempts int
	Last     error // последняя ошибка, из-за которой повторы продолжались
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("бюджет повторов исчерпан для %s после %d попыток: %v", e.Identity, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Operation один вызов API маркетплейса. Ответ проверяется на встроенные ошибки,
// транспортная ошибка возвращается отдельно.
type Operation func(ctx context.Context) (*dto.APIResponse, error)

// Executor выполняет вызовы API с повторами по заданному бюджету.
// Транспортные ошибки (сеть, таймауты) всегда считаются временными,
// ошибки из тела ответа классифицируются по коду.
type Executor struct {
	policy Policy
	logger interfaces.LoggerPort
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor создает исполнителя повторов с заданным бюджетом
func NewExecutor(policy Policy, logger interfaces.LoggerPort) *Executor {
	return &Executor{
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute выполняет операцию, повторяя временные сбои в рамках бюджета.
// identity попадает в логи и в ошибки, чтобы по журналу было видно,
// какой именно вызов буксует.
func (e *Executor) Execute(ctx context.Context, identity string, op Operation) (*dto.APIResponse, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.InitialInterval
	bo.Multiplier = e.policy.Multiplier
	bo.MaxInterval = e.policy.MaxInterval
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		resp, err := op(ctx)
		if err == nil {
			if apiErr := resp.FirstError(); apiErr != nil {
				if Classify(apiErr.Code) == DecisionAbort {
					return resp, &NonRetryableError{Identity: identity, Code: apiErr.Code, Message: apiErr.Message}
				}
				lastErr = fmt.Errorf("временная ошибка API: %s (%s)", apiErr.Code, apiErr.Message)
			} else {
				if attempt > 1 {
					e.logger.Info("Вызов успешен после повторов", "identity", identity, "attempt", attempt)
				}
				return resp, nil
			}
		} else {
			lastErr = err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}
		delay := bo.NextBackOff()
		e.logger.Warn("Вызов не удался, повтор",
			"identity", identity,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"delay", delay.String(),
			"error", lastErr,
		)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &ExhaustedError{Identity: identity, Attempts: e.policy.MaxAttempts, Last: lastErr}
}
