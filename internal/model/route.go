package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Route is an ordered, non-repeating sequence of pools from Input to Output.
// The variants are V2Route and V3Route.
type Route interface {
	Protocol() Protocol
	Input() Token
	Output() Token
	TokenPath() []Token
	PoolAddresses() []common.Address
	PoolList() []Pool
	String() string

	route()
}

// V2Route is a route through constant-product pairs.
type V2Route struct {
	Pairs []V2Pair
	Path  []Token
}

// NewV2Route builds the token path and checks that the pairs connect.
func NewV2Route(pairs []V2Pair, input, output Token) (V2Route, error) {
	pools := make([]Pool, len(pairs))
	for i, pair := range pairs {
		pools[i] = pair
	}
	path, err := buildPath(pools, input, output)
	if err != nil {
		return V2Route{}, err
	}
	return V2Route{Pairs: pairs, Path: path}, nil
}

func (r V2Route) Protocol() Protocol { return ProtocolV2 }
func (r V2Route) Input() Token       { return r.Path[0] }
func (r V2Route) Output() Token      { return r.Path[len(r.Path)-1] }
func (r V2Route) TokenPath() []Token { return r.Path }
func (r V2Route) route()             {}

func (r V2Route) PoolAddresses() []common.Address {
	out := make([]common.Address, len(r.Pairs))
	for i, pair := range r.Pairs {
		out[i] = pair.Address
	}
	return out
}

func (r V2Route) PoolList() []Pool {
	out := make([]Pool, len(r.Pairs))
	for i, pair := range r.Pairs {
		out[i] = pair
	}
	return out
}

func (r V2Route) String() string {
	var b strings.Builder
	for i, pair := range r.Pairs {
		fmt.Fprintf(&b, "%s -- [%s] --> ", r.Path[i], pair.Address.Hex())
	}
	b.WriteString(r.Output().String())
	return "[V2] " + b.String()
}

// V3Route is a route through concentrated-liquidity pools.
type V3Route struct {
	Pools []V3Pool
	Path  []Token
}

// NewV3Route builds the token path and checks that the pools connect.
func NewV3Route(pools []V3Pool, input, output Token) (V3Route, error) {
	generic := make([]Pool, len(pools))
	for i, pool := range pools {
		generic[i] = pool
	}
	path, err := buildPath(generic, input, output)
	if err != nil {
		return V3Route{}, err
	}
	return V3Route{Pools: pools, Path: path}, nil
}

func (r V3Route) Protocol() Protocol { return ProtocolV3 }
func (r V3Route) Input() Token       { return r.Path[0] }
func (r V3Route) Output() Token      { return r.Path[len(r.Path)-1] }
func (r V3Route) TokenPath() []Token { return r.Path }
func (r V3Route) route()             {}

func (r V3Route) PoolAddresses() []common.Address {
	out := make([]common.Address, len(r.Pools))
	for i, pool := range r.Pools {
		out[i] = pool.Address
	}
	return out
}

func (r V3Route) PoolList() []Pool {
	out := make([]Pool, len(r.Pools))
	for i, pool := range r.Pools {
		out[i] = pool
	}
	return out
}

func (r V3Route) String() string {
	var b strings.Builder
	for i, pool := range r.Pools {
		fmt.Fprintf(&b, "%s -- %s%% [%s] --> ", r.Path[i], feePercent(pool.Fee), pool.Address.Hex())
	}
	b.WriteString(r.Output().String())
	return "[V3] " + b.String()
}

func feePercent(fee FeeAmount) string {
	whole := fee / 10000
	frac := fee % 10000
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%04d", whole, frac), "0")
}

func buildPath(pools []Pool, input, output Token) ([]Token, error) {
	if len(pools) == 0 {
		return nil, fmt.Errorf("route has no pools")
	}
	path := make([]Token, 0, len(pools)+1)
	path = append(path, input)
	current := input
	for i, pool := range pools {
		if !Involves(pool, current) {
			return nil, fmt.Errorf("pool %d (%s) does not involve %s", i, pool.PoolAddress().Hex(), current)
		}
		current = OtherToken(pool, current)
		path = append(path, current)
	}
	if !current.Equals(output) {
		return nil, fmt.Errorf("route ends at %s, want %s", current, output)
	}
	return path, nil
}
