package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"
)

// GasPriceSource returns the current gas price in wei.
type GasPriceSource interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// FeeHistoryReader is the subset of the client used for EIP-1559 pricing.
type FeeHistoryReader interface {
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
}

// LegacyPriceReader is the subset of the client used for legacy pricing.
type LegacyPriceReader interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// EIP1559GasPriceSource prices gas as the next base fee plus the mean
// priority fee at a reward percentile over recent blocks.
type EIP1559GasPriceSource struct {
	reader     FeeHistoryReader
	blocks     uint64
	percentile float64
	retry      RetryPolicy
	logger     *zap.Logger
}

func NewEIP1559GasPriceSource(reader FeeHistoryReader, logger *zap.Logger) *EIP1559GasPriceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EIP1559GasPriceSource{
		reader:     reader,
		blocks:     4,
		percentile: 50,
		retry:      DefaultRetryPolicy,
		logger:     logger,
	}
}

func (s *EIP1559GasPriceSource) GasPrice(ctx context.Context) (*big.Int, error) {
	var history *ethereum.FeeHistory
	err := Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		history, err = s.reader.FeeHistory(ctx, s.blocks, nil, []float64{s.percentile})
		return err
	}, func(attempt int, err error) {
		s.logger.Warn("fee history failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("fee history: %w", err)
	}
	if history == nil || len(history.BaseFee) == 0 {
		return nil, fmt.Errorf("fee history is empty")
	}

	nextBaseFee := history.BaseFee[len(history.BaseFee)-1]
	priority := new(big.Int)
	count := int64(0)
	for _, rewards := range history.Reward {
		if len(rewards) == 0 || rewards[0] == nil {
			continue
		}
		priority.Add(priority, rewards[0])
		count++
	}
	if count > 0 {
		priority.Div(priority, big.NewInt(count))
	}

	price := new(big.Int).Add(nextBaseFee, priority)
	s.logger.Debug("eip1559 gas price",
		zap.String("next_base_fee", nextBaseFee.String()),
		zap.String("priority_fee", priority.String()),
		zap.String("gas_price", price.String()),
	)
	return price, nil
}

// LegacyGasPriceSource uses eth_gasPrice.
type LegacyGasPriceSource struct {
	reader LegacyPriceReader
	retry  RetryPolicy
	logger *zap.Logger
}

func NewLegacyGasPriceSource(reader LegacyPriceReader, logger *zap.Logger) *LegacyGasPriceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyGasPriceSource{reader: reader, retry: DefaultRetryPolicy, logger: logger}
}

func (s *LegacyGasPriceSource) GasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		price, err = s.reader.SuggestGasPrice(ctx)
		return err
	}, func(attempt int, err error) {
		s.logger.Warn("gas price failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return price, nil
}

// OnChainGasPriceReader is satisfied by *Client.
type OnChainGasPriceReader interface {
	FeeHistoryReader
	LegacyPriceReader
}

// NewOnChainGasPriceSource picks the EIP-1559 source on chains that
// support it and the legacy source elsewhere.
func NewOnChainGasPriceSource(params Params, reader OnChainGasPriceReader, logger *zap.Logger) GasPriceSource {
	if params.EIP1559 {
		return NewEIP1559GasPriceSource(reader, logger)
	}
	return NewLegacyGasPriceSource(reader, logger)
}

// StaticGasPriceSource always returns the same price.
type StaticGasPriceSource struct {
	Price *big.Int
}

func (s StaticGasPriceSource) GasPrice(context.Context) (*big.Int, error) {
	if s.Price == nil {
		return nil, fmt.Errorf("static gas price not set")
	}
	return new(big.Int).Set(s.Price), nil
}
