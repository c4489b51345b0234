package quoter

import (
	"time"

	"swaprouter/internal/chain"
	"swaprouter/internal/model"
)

// FallbackPolicy re-batches failed quotes with smaller chunks and a higher
// gas limit.
type FallbackPolicy struct {
	MulticallChunk  int    `mapstructure:"multicall_chunk" json:"multicall_chunk"`
	GasLimitPerCall uint64 `mapstructure:"gas_limit_per_call" json:"gas_limit_per_call"`
}

// BatchPolicy controls how V3 quotes are packed into multicall batches.
type BatchPolicy struct {
	MulticallChunk      int               `mapstructure:"multicall_chunk" json:"multicall_chunk"`
	GasLimitPerCall     uint64            `mapstructure:"gas_limit_per_call" json:"gas_limit_per_call"`
	QuoteMinSuccessRate float64           `mapstructure:"quote_min_success_rate" json:"quote_min_success_rate"`
	Concurrency         int               `mapstructure:"concurrency" json:"concurrency"`
	Timeout             time.Duration     `mapstructure:"timeout" json:"timeout"`
	Retry               chain.RetryPolicy `mapstructure:"-" json:"-"`
	Fallback            *FallbackPolicy   `mapstructure:"fallback" json:"fallback,omitempty"`
}

// DefaultBatchTimeout bounds one batch attempt.
const DefaultBatchTimeout = 10 * time.Second

// DefaultBatchPolicy returns the tuned policy for chainID. L2s get smaller
// chunks and higher per-call gas limits.
func DefaultBatchPolicy(chainID model.ChainID) BatchPolicy {
	policy := BatchPolicy{
		MulticallChunk:      210,
		GasLimitPerCall:     705_000,
		QuoteMinSuccessRate: 0.15,
		Timeout:             DefaultBatchTimeout,
		Retry:               chain.DefaultRetryPolicy,
		Fallback:            &FallbackPolicy{MulticallChunk: 70, GasLimitPerCall: 2_000_000},
	}
	switch chainID {
	case model.ChainOptimism:
		policy.MulticallChunk = 110
		policy.GasLimitPerCall = 1_200_000
		policy.QuoteMinSuccessRate = 0.1
		policy.Fallback = &FallbackPolicy{MulticallChunk: 45, GasLimitPerCall: 3_000_000}
	case model.ChainArbitrum:
		policy.MulticallChunk = 10
		policy.GasLimitPerCall = 12_000_000
		policy.QuoteMinSuccessRate = 0.1
		policy.Fallback = &FallbackPolicy{MulticallChunk: 6, GasLimitPerCall: 30_000_000}
	}
	return policy
}

func (p BatchPolicy) withDefaults() BatchPolicy {
	if p.MulticallChunk <= 0 {
		p.MulticallChunk = 210
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultBatchTimeout
	}
	if p.Retry == (chain.RetryPolicy{}) {
		p.Retry = chain.DefaultRetryPolicy
	}
	if p.Fallback != nil && p.Fallback.MulticallChunk <= 0 {
		p.Fallback = nil
	}
	return p
}
