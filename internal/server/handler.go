package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swaprouter/internal/bestroute"
	"swaprouter/internal/calldata"
	"swaprouter/internal/chain"
	"swaprouter/internal/gasmodel"
	"swaprouter/internal/model"
	"swaprouter/internal/router"
)

type quoteResponse struct {
	BlockNumber              uint64                  `json:"blockNumber"`
	TradeType                string                  `json:"tradeType"`
	TokenIn                  model.Token             `json:"tokenIn"`
	TokenOut                 model.Token             `json:"tokenOut"`
	Amount                   string                  `json:"amount"`
	AmountDecimals           string                  `json:"amountDecimals"`
	Quote                    string                  `json:"quote"`
	QuoteDecimals            string                  `json:"quoteDecimals"`
	QuoteGasAdjusted         string                  `json:"quoteGasAdjusted"`
	QuoteGasAdjustedDecimals string                  `json:"quoteGasAdjustedDecimals"`
	GasUseEstimate           string                  `json:"gasUseEstimate"`
	GasUseEstimateQuote      string                  `json:"gasUseEstimateQuote"`
	GasUseEstimateUSD        string                  `json:"gasUseEstimateUSD"`
	GasPriceWei              string                  `json:"gasPriceWei"`
	Route                    []model.PlanLeg         `json:"route"`
	MethodParameters         *model.MethodParameters `json:"methodParameters,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ctx := r.Context()

	tradeType, err := model.ParseTradeType(firstNonEmpty(query.Get("type"), "exactIn"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, ok := new(big.Int).SetString(query.Get("amount"), 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount must be a positive integer in base units"))
		return
	}
	tokenIn, err := s.resolveToken(ctx, query.Get("tokenIn"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tokenIn: %w", err))
		return
	}
	tokenOut, err := s.resolveToken(ctx, query.Get("tokenOut"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("tokenOut: %w", err))
		return
	}
	routingConfig, err := parseRoutingConfig(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts, err := parseSwapOptions(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	plan, err := s.router.Route(ctx, amount, tokenIn, tokenOut, tradeType, opts, routingConfig)
	switch {
	case isConfigurationError(err):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.logger.Error("route failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("routing failed"))
		return
	case plan == nil:
		writeError(w, http.StatusNotFound, errors.New("no route found"))
		return
	}

	writeJSON(w, http.StatusOK, newQuoteResponse(plan))
}

func newQuoteResponse(plan *model.SwapPlan) quoteResponse {
	quoteToken := plan.QuoteToken()
	amountToken := plan.TokenIn
	if plan.TradeType == model.ExactOutput {
		amountToken = plan.TokenOut
	}
	return quoteResponse{
		BlockNumber:              plan.BlockNumber,
		TradeType:                plan.TradeType.String(),
		TokenIn:                  plan.TokenIn,
		TokenOut:                 plan.TokenOut,
		Amount:                   plan.Amount.String(),
		AmountDecimals:           formatUnits(plan.Amount, amountToken.Decimals),
		Quote:                    plan.Quote.String(),
		QuoteDecimals:            formatUnits(plan.Quote, quoteToken.Decimals),
		QuoteGasAdjusted:         plan.QuoteGasAdjusted.String(),
		QuoteGasAdjustedDecimals: formatUnits(plan.QuoteGasAdjusted, quoteToken.Decimals),
		GasUseEstimate:           plan.EstimatedGasUsed.String(),
		GasUseEstimateQuote:      formatUnits(plan.EstimatedGasUsedQuoteToken, quoteToken.Decimals),
		GasUseEstimateUSD:        formatUnits(plan.EstimatedGasUsedUSD, plan.USDToken.Decimals),
		GasPriceWei:              plan.GasPriceWei.String(),
		Route:                    plan.Legs(),
		MethodParameters:         plan.MethodParameters,
	}
}

// formatUnits renders a base-unit amount with the token's decimals.
func formatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// resolveToken accepts a chain-table symbol or an address.
func (s *Server) resolveToken(ctx context.Context, value string) (model.Token, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Token{}, errors.New("missing token")
	}
	params := s.router.Params()
	if !common.IsHexAddress(value) {
		token, ok := params.TokenBySymbol(value)
		if !ok {
			return model.Token{}, fmt.Errorf("unknown symbol %q on %s", value, params.Name)
		}
		return token, nil
	}
	if s.tokens == nil {
		return model.Token{}, fmt.Errorf("no token resolver for %s", value)
	}
	tokens, err := s.tokens.Resolve(ctx, []string{value}, 0)
	if err != nil {
		return model.Token{}, err
	}
	token, ok := tokens.GetTokenByAddress(value)
	if !ok {
		return model.Token{}, fmt.Errorf("token %s not found", value)
	}
	return token, nil
}

func parseRoutingConfig(query url.Values) (*router.RoutingConfig, error) {
	cfg := &router.RoutingConfig{}
	ints := []struct {
		key string
		dst *int
	}{
		{"minSplits", &cfg.MinSplits},
		{"maxSplits", &cfg.MaxSplits},
		{"distributionPercent", &cfg.DistributionPercent},
		{"maxSwapsPerPath", &cfg.MaxSwapsPerPath},
	}
	for _, item := range ints {
		raw := query.Get(item.key)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", item.key)
		}
		*item.dst = value
	}
	selections := []struct {
		prefix string
		sel    *router.PoolSelection
	}{
		{"v3", &cfg.V3PoolSelection},
		{"v2", &cfg.V2PoolSelection},
	}
	for _, item := range selections {
		for _, field := range item.sel.Fields() {
			key := item.prefix + field.Param
			raw := query.Get(key)
			if raw == "" {
				continue
			}
			value, err := strconv.Atoi(raw)
			if err != nil || value < 0 {
				return nil, fmt.Errorf("%s must be a non-negative integer", key)
			}
			*field.Value = &value
		}
	}
	if raw := query.Get("blockNumber"); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid blockNumber: %w", err)
		}
		cfg.BlockNumber = value
	}
	if raw := query.Get("forceCrossProtocol"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid forceCrossProtocol: %w", err)
		}
		cfg.ForceCrossProtocol = value
	}
	if raw := query.Get("protocols"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			protocol, err := model.ParseProtocol(part)
			if err != nil {
				return nil, err
			}
			cfg.Protocols = append(cfg.Protocols, protocol)
		}
	}
	return cfg, nil
}

// parseSwapOptions returns nil unless a recipient is given.
func parseSwapOptions(query url.Values) (*calldata.SwapOptions, error) {
	recipient := query.Get("recipient")
	if recipient == "" {
		return nil, nil
	}
	if !common.IsHexAddress(recipient) {
		return nil, fmt.Errorf("invalid recipient %q", recipient)
	}
	opts := &calldata.SwapOptions{Recipient: common.HexToAddress(recipient), SlippageBps: 50}
	if raw := query.Get("slippageBps"); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid slippageBps: %w", err)
		}
		opts.SlippageBps = uint32(value)
	}
	raw := query.Get("deadline")
	if raw == "" {
		return nil, errors.New("deadline is required with recipient")
	}
	deadline, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline: %w", err)
	}
	opts.Deadline = deadline
	return opts, nil
}

func isConfigurationError(err error) bool {
	return errors.Is(err, router.ErrConfiguration) ||
		errors.Is(err, chain.ErrUnsupportedChain) ||
		errors.Is(err, gasmodel.ErrNoUSDToken) ||
		errors.Is(err, bestroute.ErrL1FeeUnsupported)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	body, err := sonic.Marshal(value)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
