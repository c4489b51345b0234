package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/config"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
	"swaprouter/internal/storage/postgres"
)

func runPoolsSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if len(cfg.PoolURIs) == 0 {
		return fmt.Errorf("at least one pool uri is required")
	}
	params, err := chain.ParamsFor(cfg.ChainID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	source := provider.NewURIPoolSource(cfg.PoolURIs, cfg.PoolURITimeout, logger)

	logger.Info("pool sync start",
		zap.String("chain", params.Name),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("sources", len(cfg.PoolURIs)),
	)

	for _, protocol := range []model.Protocol{model.ProtocolV3, model.ProtocolV2} {
		if _, ok := cfg.PoolURIs[protocol]; !ok {
			continue
		}
		if !params.Supports(protocol) {
			logger.Warn("protocol not deployed, skipping", zap.String("protocol", string(protocol)))
			continue
		}
		result, err := provider.SyncPools(ctx, source, store, params.ChainID, protocol, time.Now(), logger)
		if err != nil {
			return fmt.Errorf("sync %s pools: %w", protocol, err)
		}
		logger.Info("pool sync done",
			zap.String("protocol", string(result.Protocol)),
			zap.Int("written", result.Written),
			zap.Int("skipped", result.Skipped),
		)
	}
	return nil
}
