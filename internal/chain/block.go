package chain

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LatestBlockNumber fetches the chain head with bounded retries.
func LatestBlockNumber(ctx context.Context, reader BlockNumberReader, policy RetryPolicy, logger *zap.Logger) (uint64, error) {
	if reader == nil {
		return 0, fmt.Errorf("block number reader is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var number uint64
	err := Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		number, err = reader.LatestBlockNumber(ctx)
		return err
	}, func(attempt int, err error) {
		logger.Warn("block number failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return number, nil
}
