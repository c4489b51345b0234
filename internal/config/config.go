package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"swaprouter/internal/model"
	"swaprouter/internal/quoter"
	"swaprouter/internal/router"
	"swaprouter/internal/server"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string
	ChainID  model.ChainID
	RPCURL   string

	// Pool sources, tried in order: postgres, URI exports, static pairs.
	PoolURIs       map[model.Protocol]string
	PoolURITimeout time.Duration
	PGDSN          string
	PoolMaxAge     time.Duration
	PoolCacheTTL   time.Duration
	StaticPools    bool
	SnapshotDir    string
	SnapshotBolt   string

	TokenList string
	Blocklist []string
	PlanLog   string

	// GasPriceGwei overrides the on-chain gas price when positive.
	GasPriceGwei float64

	Batch   quoter.BatchPolicy
	Routing router.RoutingConfig
	Server  server.Config
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(model.ChainMainnet))
	v.SetDefault("log-level", "info")
	v.SetDefault("pool-uri-timeout", 6*time.Second)
	v.SetDefault("pool-max-age", 24*time.Hour)
	v.SetDefault("pool-cache-ttl", 5*time.Minute)
	v.SetDefault("static-pools", true)
	v.SetDefault("snapshot-dir", "./data/pool-snapshots")
	v.SetDefault("listen", server.DefaultConfig().Address)
	v.SetDefault("request-timeout", server.DefaultConfig().RequestTimeout)
	v.SetDefault("allowed-origins", "*")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	chainID := model.ChainID(v.GetUint64("chain-id"))
	cfg := Config{
		LogLevel:       v.GetString("log-level"),
		ChainID:        chainID,
		RPCURL:         v.GetString("rpc"),
		PoolURIs:       make(map[model.Protocol]string),
		PoolURITimeout: v.GetDuration("pool-uri-timeout"),
		PGDSN:          v.GetString("pg-dsn"),
		PoolMaxAge:     v.GetDuration("pool-max-age"),
		PoolCacheTTL:   v.GetDuration("pool-cache-ttl"),
		StaticPools:    v.GetBool("static-pools"),
		SnapshotDir:    v.GetString("snapshot-dir"),
		SnapshotBolt:   v.GetString("snapshot-bolt"),
		TokenList:      v.GetString("token-list"),
		Blocklist:      getStringSlice(v, "blocklist"),
		PlanLog:        v.GetString("plan-log"),
		GasPriceGwei:   v.GetFloat64("gas-price-gwei"),
		Server: server.Config{
			Address:        v.GetString("listen"),
			AllowedOrigins: getStringSlice(v, "allowed-origins"),
			RatePerMinute:  v.GetInt("rate-per-minute"),
			RequestTimeout: v.GetDuration("request-timeout"),
		},
	}
	if uri := v.GetString("pool-uri-v3"); uri != "" {
		cfg.PoolURIs[model.ProtocolV3] = uri
	}
	if uri := v.GetString("pool-uri-v2"); uri != "" {
		cfg.PoolURIs[model.ProtocolV2] = uri
	}

	cfg.Batch = batchPolicy(v, chainID)

	routing, err := routingConfig(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Routing = routing

	return cfg, nil
}

// batchPolicy overlays the set keys on the chain's tuned policy.
func batchPolicy(v *viper.Viper, chainID model.ChainID) quoter.BatchPolicy {
	policy := quoter.DefaultBatchPolicy(chainID)
	if v.IsSet("multicall-chunk") && v.GetInt("multicall-chunk") > 0 {
		policy.MulticallChunk = v.GetInt("multicall-chunk")
	}
	if v.IsSet("gas-limit-per-call") && v.GetUint64("gas-limit-per-call") > 0 {
		policy.GasLimitPerCall = v.GetUint64("gas-limit-per-call")
	}
	if v.IsSet("quote-min-success-rate") {
		policy.QuoteMinSuccessRate = v.GetFloat64("quote-min-success-rate")
	}
	if v.IsSet("quote-concurrency") {
		policy.Concurrency = v.GetInt("quote-concurrency")
	}
	if v.IsSet("batch-timeout") && v.GetDuration("batch-timeout") > 0 {
		policy.Timeout = v.GetDuration("batch-timeout")
	}
	if v.IsSet("no-quote-fallback") && v.GetBool("no-quote-fallback") {
		policy.Fallback = nil
	}
	return policy
}

// routingConfig reads the overrides only. Zero scalar fields and unset
// selection limits keep the chain defaults when merged by the router.
func routingConfig(v *viper.Viper) (router.RoutingConfig, error) {
	cfg := router.RoutingConfig{
		MaxSwapsPerPath:     v.GetInt("max-swaps-per-path"),
		MinSplits:           v.GetInt("min-splits"),
		MaxSplits:           v.GetInt("max-splits"),
		DistributionPercent: v.GetInt("distribution-percent"),
		ForceCrossProtocol:  v.GetBool("force-cross-protocol"),
		BlockNumber:         v.GetUint64("block"),
	}
	bindSelection(v, "v3-", &cfg.V3PoolSelection)
	bindSelection(v, "v2-", &cfg.V2PoolSelection)
	for _, raw := range getStringSlice(v, "protocols") {
		protocol, err := model.ParseProtocol(raw)
		if err != nil {
			return router.RoutingConfig{}, fmt.Errorf("parse protocols: %w", err)
		}
		cfg.Protocols = append(cfg.Protocols, protocol)
	}
	return cfg, nil
}

// bindSelection sets only the limits present in v, so an explicit zero
// disables a bucket while absent keys keep the chain default.
func bindSelection(v *viper.Viper, prefix string, sel *router.PoolSelection) {
	for _, field := range sel.Fields() {
		key := prefix + field.Key
		if !v.IsSet(key) {
			continue
		}
		value := v.GetInt(key)
		*field.Value = &value
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
