package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swaprouter/internal/calldata"
	"swaprouter/internal/config"
	"swaprouter/internal/model"
)

func runQuote(cmd *cobra.Command, _ []string) error {
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

	inFlag, _ := cmd.Flags().GetString("in")
	outFlag, _ := cmd.Flags().GetString("out")
	amountFlag, _ := cmd.Flags().GetString("amount")
	typeFlag, _ := cmd.Flags().GetString("type")
	if inFlag == "" || outFlag == "" || amountFlag == "" {
		return fmt.Errorf("in, out and amount are required")
	}
	tradeType, err := model.ParseTradeType(typeFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tokenIn, err := resolveToken(ctx, a.params, a.tokens, inFlag)
	if err != nil {
		return err
	}
	tokenOut, err := resolveToken(ctx, a.params, a.tokens, outFlag)
	if err != nil {
		return err
	}

	amountToken := tokenIn
	if tradeType == model.ExactOutput {
		amountToken = tokenOut
	}
	amount, err := model.ParseAmount(amountFlag, amountToken.Decimals)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	opts, err := swapOptions(cmd)
	if err != nil {
		return err
	}

	logger.Info("quote start",
		zap.String("chain", a.params.Name),
		zap.String("rpc", cfg.RPCURL),
		zap.Stringer("token_in", tokenIn),
		zap.Stringer("token_out", tokenOut),
		zap.Stringer("trade_type", tradeType),
		zap.String("amount", amount.String()),
	)

	plan, err := a.router.Route(ctx, amount, tokenIn, tokenOut, tradeType, opts, &cfg.Routing)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("no route from %s to %s", tokenIn, tokenOut)
	}

	quoteToken := plan.QuoteToken()
	logger.Info("quote done",
		zap.Uint64("block", plan.BlockNumber),
		zap.String("quote", model.FormatAmount(plan.Quote, quoteToken.Decimals)),
		zap.String("quote_gas_adjusted", model.FormatAmount(plan.QuoteGasAdjusted, quoteToken.Decimals)),
		zap.String("gas_price_gwei", gweiString(plan.GasPriceWei)),
		zap.Int("legs", len(plan.Routes)),
	)

	out, err := sonic.ConfigStd.MarshalIndent(model.NewPlanRecord(a.params.ChainID, plan, time.Now()), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func swapOptions(cmd *cobra.Command) (*calldata.SwapOptions, error) {
	recipient, _ := cmd.Flags().GetString("recipient")
	if recipient == "" {
		return nil, nil
	}
	if !common.IsHexAddress(recipient) {
		return nil, fmt.Errorf("invalid recipient %q", recipient)
	}
	slippage, _ := cmd.Flags().GetUint32("slippage-bps")
	deadline, _ := cmd.Flags().GetDuration("deadline")
	return &calldata.SwapOptions{
		Recipient:   common.HexToAddress(recipient),
		SlippageBps: slippage,
		Deadline:    uint64(time.Now().Add(deadline).Unix()),
	}, nil
}
