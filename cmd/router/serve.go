package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swaprouter/internal/calldata"
	"swaprouter/internal/config"
	"swaprouter/internal/model"
	"swaprouter/internal/router"
	"swaprouter/internal/server"
)

func runServe(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg.Server, &defaultingRouter{Router: a.router, defaults: cfg.Routing}, a.tokens, prometheus.DefaultGatherer, logger)

	logger.Info("server start",
		zap.String("chain", a.params.Name),
		zap.String("listen", cfg.Server.Address),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("rate_per_minute", cfg.Server.RatePerMinute),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("server stopping")
	return srv.Shutdown(shutdownCtx)
}

// defaultingRouter layers per-request routing overrides on the process-wide
// ones from flags and config.
type defaultingRouter struct {
	*router.Router
	defaults router.RoutingConfig
}

func (d *defaultingRouter) Route(ctx context.Context, amount *big.Int, tokenIn, tokenOut model.Token, tradeType model.TradeType, opts *calldata.SwapOptions, cfg *router.RoutingConfig) (*model.SwapPlan, error) {
	merged := d.defaults.Merge(cfg)
	return d.Router.Route(ctx, amount, tokenIn, tokenOut, tradeType, opts, &merged)
}
