package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/wastesort/internal/logging"
	"github.com/example/wastesort/internal/retry"
)

func (uc *ScanUseCase) withRedisRetry(ctx context.Context, scanID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, scanID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, scanID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, scanID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !retry.IsTransient(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, scanID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, scanID, err)
}

func (uc *ScanUseCase) withRedisGet(ctx context.Context, scanID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, scanID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
