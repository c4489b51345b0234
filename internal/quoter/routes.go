package quoter

import (
	"fmt"
	"math/big"

	"swaprouter/internal/model"
)

// ComputeAllV3Routes enumerates every simple path of at most maxHops pools
// from tokenIn to tokenOut.
func ComputeAllV3Routes(tokenIn, tokenOut model.Token, pools []model.V3Pool, maxHops int) []model.V3Route {
	var routes []model.V3Route
	for _, path := range computeAllPaths(tokenIn, tokenOut, pools, maxHops) {
		route, err := model.NewV3Route(path, tokenIn, tokenOut)
		if err != nil {
			continue
		}
		routes = append(routes, route)
	}
	return routes
}

// ComputeAllV2Routes is ComputeAllV3Routes for V2 pairs.
func ComputeAllV2Routes(tokenIn, tokenOut model.Token, pairs []model.V2Pair, maxHops int) []model.V2Route {
	var routes []model.V2Route
	for _, path := range computeAllPaths(tokenIn, tokenOut, pairs, maxHops) {
		route, err := model.NewV2Route(path, tokenIn, tokenOut)
		if err != nil {
			continue
		}
		routes = append(routes, route)
	}
	return routes
}

// ComputeAllRoutes enumerates routes over a single-protocol pool list.
func ComputeAllRoutes(tokenIn, tokenOut model.Token, pools []model.Pool, maxHops int) ([]model.Route, error) {
	var (
		v3 []model.V3Pool
		v2 []model.V2Pair
	)
	for _, pool := range pools {
		switch p := pool.(type) {
		case model.V3Pool:
			v3 = append(v3, p)
		case model.V2Pair:
			v2 = append(v2, p)
		default:
			return nil, fmt.Errorf("unsupported pool type %T", pool)
		}
	}
	if len(v3) > 0 && len(v2) > 0 {
		return nil, fmt.Errorf("routes cannot mix protocols")
	}

	var out []model.Route
	for _, route := range ComputeAllV3Routes(tokenIn, tokenOut, v3, maxHops) {
		out = append(out, route)
	}
	for _, route := range ComputeAllV2Routes(tokenIn, tokenOut, v2, maxHops) {
		out = append(out, route)
	}
	return out, nil
}

func computeAllPaths[P model.Pool](tokenIn, tokenOut model.Token, pools []P, maxHops int) [][]P {
	var (
		paths [][]P
		path  []P
	)
	used := make([]bool, len(pools))

	var walk func(current model.Token, hopsLeft int)
	walk = func(current model.Token, hopsLeft int) {
		for i, pool := range pools {
			if used[i] || !model.Involves(pool, current) {
				continue
			}
			next := model.OtherToken(pool, current)
			path = append(path, pool)
			used[i] = true
			if next.Equals(tokenOut) {
				paths = append(paths, append([]P(nil), path...))
			} else if hopsLeft > 1 {
				walk(next, hopsLeft-1)
			}
			used[i] = false
			path = path[:len(path)-1]
		}
	}
	if maxHops > 0 {
		walk(tokenIn, maxHops)
	}
	return paths
}

// AmountDistribution splits amount into 100/distributionPercent steps:
// percents[i] = (i+1)*distributionPercent and amounts[i] is that share of
// amount, rounded down.
func AmountDistribution(amount *big.Int, distributionPercent int) ([]int, []*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, nil, fmt.Errorf("invalid amount")
	}
	if distributionPercent <= 0 || distributionPercent > 100 || 100%distributionPercent != 0 {
		return nil, nil, fmt.Errorf("distribution percent %d must divide 100", distributionPercent)
	}
	steps := 100 / distributionPercent
	percents := make([]int, steps)
	amounts := make([]*big.Int, steps)
	hundred := big.NewInt(100)
	for i := 1; i <= steps; i++ {
		percent := i * distributionPercent
		percents[i-1] = percent
		share := new(big.Int).Mul(amount, big.NewInt(int64(percent)))
		amounts[i-1] = share.Quo(share, hundred)
	}
	return percents, amounts, nil
}
