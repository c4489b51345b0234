package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/model"
)

// FetchTokens loads decimals and symbol for addresses in batched calls.
// Tokens whose decimals call fails, or whose symbol cannot be read as either
// string or bytes32, are left out of the result.
func FetchTokens(ctx context.Context, caller chain.BatchCaller, chainID model.ChainID, addresses []common.Address, blockNumber uint64, logger *zap.Logger) (map[common.Address]model.Token, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[common.Address]model.Token, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	decimalsBatch, err := chain.CallSameFunctionOnMultipleContracts(ctx, caller, addresses, stringABI, "decimals", nil, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("decimals batch: %w", err)
	}
	symbolBatch, err := chain.CallSameFunctionOnMultipleContracts(ctx, caller, addresses, stringABI, "symbol", nil, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("symbol batch: %w", err)
	}

	symbols := make(map[common.Address]string, len(addresses))
	var retry []common.Address
	for i, address := range addresses {
		res := symbolBatch.Results[i]
		if res.Success {
			if symbol, ok := res.Values[0].(string); ok {
				symbols[address] = symbol
				continue
			}
		}
		retry = append(retry, address)
	}

	if len(retry) > 0 {
		fallback, err := chain.CallSameFunctionOnMultipleContracts(ctx, caller, retry, bytes32ABI, "symbol", nil, blockNumber)
		if err != nil {
			return nil, fmt.Errorf("bytes32 symbol batch: %w", err)
		}
		for i, address := range retry {
			res := fallback.Results[i]
			if !res.Success {
				continue
			}
			if symbol, ok := bytes32ToString(res.Values[0]); ok {
				symbols[address] = symbol
			}
		}
	}

	for i, address := range addresses {
		res := decimalsBatch.Results[i]
		if !res.Success {
			logger.Debug("token decimals unavailable", zap.String("token", address.Hex()), zap.String("reason", res.Reason))
			continue
		}
		decimals, err := asUint8(res.Values[0])
		if err != nil {
			logger.Debug("token decimals malformed", zap.String("token", address.Hex()), zap.Error(err))
			continue
		}
		symbol, ok := symbols[address]
		if !ok {
			logger.Debug("token symbol unavailable", zap.String("token", address.Hex()))
			continue
		}
		out[address] = model.Token{
			ChainID:  chainID,
			Address:  address,
			Decimals: decimals,
			Symbol:   symbol,
		}
	}
	return out, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	var raw []byte
	switch v := value.(type) {
	case [32]byte:
		raw = v[:]
	case []byte:
		raw = v
	default:
		return "", false
	}
	trimmed := strings.TrimSpace(string(bytes.TrimRight(raw, "\x00")))
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil big int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if v == nil || !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("decimals out of range")
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
