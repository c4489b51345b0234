package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
)

// StaticPoolSource enumerates the pools that could exist between the chain's
// base tokens and the query tokens, using deterministic addresses. It needs
// no network and carries no liquidity data, so every record ranks zero.
type StaticPoolSource struct {
	params    chain.Params
	addresses *dex.AddressCache
}

func NewStaticPoolSource(params chain.Params, addresses *dex.AddressCache) *StaticPoolSource {
	if addresses == nil {
		addresses = dex.NewAddressCache()
	}
	return &StaticPoolSource{params: params, addresses: addresses}
}

func (s *StaticPoolSource) ListPools(_ context.Context, query PoolQuery) (PoolList, error) {
	if !s.params.Supports(query.Protocol) {
		return PoolList{}, fmt.Errorf("%s not deployed on %s", query.Protocol, s.params.Name)
	}

	tokens := make([]model.Token, 0, len(s.params.BaseTokens)+2)
	seen := make(map[string]struct{})
	add := func(token model.Token) {
		if _, ok := seen[token.Key()]; ok {
			return
		}
		seen[token.Key()] = struct{}{}
		tokens = append(tokens, token)
	}
	for _, id := range []string{query.TokenIn, query.TokenOut} {
		if common.IsHexAddress(id) {
			add(model.Token{ChainID: s.params.ChainID, Address: common.HexToAddress(id)})
		}
	}
	for _, base := range s.params.BaseTokens {
		add(base)
	}

	var pools []model.SubgraphPool
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			a, b := model.SortTokens(tokens[i], tokens[j])
			switch query.Protocol {
			case model.ProtocolV3:
				for _, fee := range model.FeeAmounts {
					address := s.addresses.V3Pool(s.params, a, b, fee)
					pools = append(pools, model.SubgraphPool{
						Protocol: model.ProtocolV3,
						ID:       model.AddressKey(address),
						Token0:   a.Key(),
						Token1:   b.Key(),
						FeeTier:  fee.String(),
					})
				}
			case model.ProtocolV2:
				address := s.addresses.V2Pair(s.params, a, b)
				pools = append(pools, model.SubgraphPool{
					Protocol: model.ProtocolV2,
					ID:       model.AddressKey(address),
					Token0:   a.Key(),
					Token1:   b.Key(),
				})
			}
		}
	}
	return PoolList{Pools: pools, Scoped: true, Source: "static", FetchedAt: time.Now().UTC()}, nil
}
