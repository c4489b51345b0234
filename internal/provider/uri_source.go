package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	getter "github.com/hashicorp/go-getter"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/model"
)

const defaultURITimeout = 6 * time.Second

// URIPoolSource downloads a pool export per protocol. Any go-getter source
// works: https URLs, local paths, s3:: and gcs:: locations, and .gz archives.
type URIPoolSource struct {
	uris    map[model.Protocol]string
	timeout time.Duration
	retry   chain.RetryPolicy
	workDir string
	logger  *zap.Logger
}

func NewURIPoolSource(uris map[model.Protocol]string, timeout time.Duration, logger *zap.Logger) *URIPoolSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultURITimeout
	}
	return &URIPoolSource{
		uris:    uris,
		timeout: timeout,
		retry:   chain.DefaultRetryPolicy,
		logger:  logger,
	}
}

func (s *URIPoolSource) ListPools(ctx context.Context, query PoolQuery) (PoolList, error) {
	uri, ok := s.uris[query.Protocol]
	if !ok || uri == "" {
		return PoolList{}, fmt.Errorf("no pool uri for %s", query.Protocol)
	}

	var pools []model.SubgraphPool
	err := chain.Retry(ctx, s.retry, func(ctx context.Context) error {
		data, err := s.fetch(ctx, uri)
		if err != nil {
			return err
		}
		pools, err = ParsePoolExport(query.Protocol, data)
		if err != nil {
			return chain.Permanent(err)
		}
		return nil
	}, func(attempt int, err error) {
		s.logger.Warn("pool uri fetch failed",
			zap.String("uri", uri),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		return PoolList{}, fmt.Errorf("list pools from %s: %w", uri, err)
	}

	s.logger.Info("loaded pools from uri",
		zap.String("protocol", string(query.Protocol)),
		zap.String("uri", uri),
		zap.Int("pools", len(pools)),
	)
	return PoolList{Pools: pools, Source: "uri", FetchedAt: time.Now().UTC()}, nil
}

func (s *URIPoolSource) fetch(ctx context.Context, uri string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dir, err := os.MkdirTemp(s.workDir, "pools-*")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "pools.json")
	client := &getter.Client{
		Ctx:  ctx,
		Src:  uri,
		Dst:  dst,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return os.ReadFile(dst)
}

type exportToken struct {
	ID string `json:"id"`
}

type exportV3Pool struct {
	ID        string          `json:"id"`
	FeeTier   decimal.Decimal `json:"feeTier"`
	Liquidity decimal.Decimal `json:"liquidity"`
	Token0    exportToken     `json:"token0"`
	Token1    exportToken     `json:"token1"`
	TVLETH    decimal.Decimal `json:"tvlETH"`
	TVLUSD    decimal.Decimal `json:"tvlUSD"`
}

type exportV2Pool struct {
	ID      string          `json:"id"`
	Token0  exportToken     `json:"token0"`
	Token1  exportToken     `json:"token1"`
	Supply  decimal.Decimal `json:"supply"`
	Reserve decimal.Decimal `json:"reserve"`
}

// ParsePoolExport decodes a subgraph-style pool export. Numeric fields may
// be JSON numbers or strings.
func ParsePoolExport(protocol model.Protocol, data []byte) ([]model.SubgraphPool, error) {
	switch protocol {
	case model.ProtocolV3:
		var raw []exportV3Pool
		if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode v3 export: %w", err)
		}
		out := make([]model.SubgraphPool, 0, len(raw))
		for _, pool := range raw {
			out = append(out, model.SubgraphPool{
				Protocol:  model.ProtocolV3,
				ID:        pool.ID,
				Token0:    pool.Token0.ID,
				Token1:    pool.Token1.ID,
				FeeTier:   pool.FeeTier.String(),
				Liquidity: pool.Liquidity.String(),
				TVLETH:    pool.TVLETH.InexactFloat64(),
				TVLUSD:    pool.TVLUSD.InexactFloat64(),
			}.Normalize())
		}
		return out, nil
	case model.ProtocolV2:
		var raw []exportV2Pool
		if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode v2 export: %w", err)
		}
		out := make([]model.SubgraphPool, 0, len(raw))
		for _, pool := range raw {
			out = append(out, model.SubgraphPool{
				Protocol: model.ProtocolV2,
				ID:       pool.ID,
				Token0:   pool.Token0.ID,
				Token1:   pool.Token1.ID,
				Supply:   pool.Supply.InexactFloat64(),
				Reserve:  pool.Reserve.InexactFloat64(),
			}.Normalize())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported protocol %q", protocol)
	}
}
