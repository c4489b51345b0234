package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swaprouter/internal/router"
)

func main() {
	// A missing .env is fine; values then come from the environment.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "router",
		Short:        "Split-route swap router",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute the best route for one swap",
		RunE:  runQuote,
	}

	addChainFlags(quoteCmd.Flags())
	addRoutingFlags(quoteCmd.Flags())
	quoteCmd.Flags().String("in", "", "token in (symbol or address)")
	quoteCmd.Flags().String("out", "", "token out (symbol or address)")
	quoteCmd.Flags().String("amount", "", "amount in human units of the fixed token")
	quoteCmd.Flags().String("type", "exactIn", "trade type (exactIn, exactOut)")
	quoteCmd.Flags().String("recipient", "", "recipient address; enables call data")
	quoteCmd.Flags().Uint32("slippage-bps", 50, "slippage tolerance in basis points")
	quoteCmd.Flags().Duration("deadline", 30*time.Minute, "deadline offset from now")

	root.AddCommand(quoteCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve quotes over HTTP",
		RunE:  runServe,
	}

	addChainFlags(serveCmd.Flags())
	addRoutingFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", "localhost:8080", "HTTP listen address")
	serveCmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins (comma-separated)")
	serveCmd.Flags().Int("rate-per-minute", 0, "per-IP request limit, 0 disables")
	serveCmd.Flags().Duration("request-timeout", 30*time.Second, "per-request routing timeout")

	root.AddCommand(serveCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "Manage the persisted pool lists",
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy pool lists from the URI exports into Postgres",
		RunE:  runPoolsSync,
	}

	syncCmd.Flags().Uint64("chain-id", 1, "chain id")
	syncCmd.Flags().String("pool-uri-v3", "", "V3 pool export URI")
	syncCmd.Flags().String("pool-uri-v2", "", "V2 pool export URI")
	syncCmd.Flags().Duration("pool-uri-timeout", 6*time.Second, "pool export fetch timeout")
	syncCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	poolsCmd.AddCommand(syncCmd)
	root.AddCommand(poolsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(fs *pflag.FlagSet) {
	fs.Uint64("chain-id", 1, "chain id")
	fs.String("rpc", "", "JSON-RPC URL")
	fs.String("pool-uri-v3", "", "V3 pool export URI (file, http, s3, ...)")
	fs.String("pool-uri-v2", "", "V2 pool export URI")
	fs.Duration("pool-uri-timeout", 6*time.Second, "pool export fetch timeout")
	fs.String("pg-dsn", "", "Postgres DSN for synced pool lists")
	fs.Duration("pool-max-age", 24*time.Hour, "maximum age of a synced pool list")
	fs.Duration("pool-cache-ttl", 5*time.Minute, "pool list cache TTL")
	fs.Bool("static-pools", true, "fall back to pools derived from the base tokens")
	fs.String("snapshot-dir", "./data/pool-snapshots", "directory of last-known-good pool lists")
	fs.String("snapshot-bolt", "", "bolt file for last-known-good pool lists (overrides snapshot-dir)")
	fs.String("token-list", "", "token list file (toml)")
	fs.StringSlice("blocklist", nil, "blocked token or pool addresses (comma-separated)")
	fs.String("plan-log", "", "append routed plans to this JSONL file")
	fs.Float64("gas-price-gwei", 0, "static gas price in gwei, 0 reads the chain")
	fs.Int("multicall-chunk", 0, "quotes per multicall batch")
	fs.Uint64("gas-limit-per-call", 0, "gas limit per quoter call")
	fs.Float64("quote-min-success-rate", 0, "minimum batch success rate before retrying")
	fs.Int("quote-concurrency", 0, "concurrent quote batches, 0 is unbounded")
	fs.Duration("batch-timeout", 0, "timeout of one quote batch attempt")
	fs.Bool("no-quote-fallback", false, "disable the smaller-batch quote retry")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addRoutingFlags(fs *pflag.FlagSet) {
	fs.Int("min-splits", 0, "minimum legs per plan")
	fs.Int("max-splits", 0, "maximum legs per plan")
	fs.Int("distribution-percent", 0, "split granularity in percent")
	fs.Int("max-swaps-per-path", 0, "maximum hops per route")
	fs.Bool("force-cross-protocol", false, "require legs on more than one protocol")
	fs.StringSlice("protocols", nil, "protocols to route (V2, V3)")
	fs.Uint64("block", 0, "route at this block, 0 is latest")

	var limits router.PoolSelection
	for _, prefix := range []string{"v3", "v2"} {
		for _, field := range limits.Fields() {
			fs.Int(prefix+"-"+field.Key, 0, prefix+" pool selection limit "+field.Key+" (unset keeps the chain default)")
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
