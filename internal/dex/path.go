package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"swaprouter/internal/model"
)

// EncodeV3Path packs a V3 route as token|fee|token|...|token, the format
// QuoterV2 and SwapRouter02 expect. Exact-output paths are encoded from the
// output token backwards.
func EncodeV3Path(route model.V3Route, exactOutput bool) ([]byte, error) {
	if len(route.Pools) == 0 || len(route.Path) != len(route.Pools)+1 {
		return nil, fmt.Errorf("malformed v3 route: %d pools, %d tokens", len(route.Pools), len(route.Path))
	}

	tokens := make([]model.Token, len(route.Path))
	fees := make([]model.FeeAmount, len(route.Pools))
	copy(tokens, route.Path)
	for i, pool := range route.Pools {
		fees[i] = pool.Fee
	}
	if exactOutput {
		reverseTokens(tokens)
		reverseFees(fees)
	}

	out := make([]byte, 0, common.AddressLength*len(tokens)+3*len(fees))
	for i, token := range tokens {
		out = append(out, token.Address.Bytes()...)
		if i < len(fees) {
			fee := uint32(fees[i])
			out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return out, nil
}

// V2AddressPath lists the token addresses of a V2 route in swap order.
func V2AddressPath(route model.V2Route) []common.Address {
	out := make([]common.Address, len(route.Path))
	for i, token := range route.Path {
		out[i] = token.Address
	}
	return out
}

func reverseTokens(tokens []model.Token) {
	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
}

func reverseFees(fees []model.FeeAmount) {
	for i, j := 0, len(fees)-1; i < j; i, j = i+1, j-1 {
		fees[i], fees[j] = fees[j], fees[i]
	}
}
