package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"swaprouter/internal/model"
)

// ErrUnsupportedChain is returned for chains missing from the parameter table.
var ErrUnsupportedChain = errors.New("unsupported chain")

// L1FeeKind names the L1 data-fee oracle of a rollup.
type L1FeeKind int

const (
	L1FeeNone L1FeeKind = iota
	L1FeeOptimism
	L1FeeArbitrum
)

// Params is the static deployment data of one chain.
type Params struct {
	ChainID        model.ChainID
	Name           string
	WrappedNative  model.Token
	USDGasTokens   []model.Token
	BaseTokens     []model.Token
	Multicall      common.Address
	QuoterV2       common.Address
	SwapRouter02   common.Address
	V3Factory      common.Address
	V3InitCodeHash common.Hash
	V2Factory      common.Address
	V2InitCodeHash common.Hash
	Protocols      []model.Protocol
	L1Fee          L1FeeKind
	L1FeeOracle    common.Address
	EIP1559        bool
}

// Supports reports whether protocol is deployed on the chain.
func (p Params) Supports(protocol model.Protocol) bool {
	for _, item := range p.Protocols {
		if item == protocol {
			return true
		}
	}
	return false
}

func (p Params) HasL1Fee() bool {
	return p.L1Fee != L1FeeNone
}

func (p Params) IsWrappedNative(token model.Token) bool {
	return p.WrappedNative.Equals(token)
}

// USDToken is the stable used to denominate gas in USD.
func (p Params) USDToken() (model.Token, bool) {
	if len(p.USDGasTokens) == 0 {
		return model.Token{}, false
	}
	return p.USDGasTokens[0], true
}

// Tokens lists every token the table knows for the chain, deduplicated.
func (p Params) Tokens() []model.Token {
	seen := make(map[string]struct{})
	out := make([]model.Token, 0, len(p.BaseTokens)+len(p.USDGasTokens)+1)
	add := func(tokens ...model.Token) {
		for _, token := range tokens {
			if _, ok := seen[token.Key()]; ok {
				continue
			}
			seen[token.Key()] = struct{}{}
			out = append(out, token)
		}
	}
	add(p.WrappedNative)
	add(p.BaseTokens...)
	add(p.USDGasTokens...)
	return out
}

// TokenBySymbol looks up a known token by case-insensitive symbol.
func (p Params) TokenBySymbol(symbol string) (model.Token, bool) {
	for _, token := range p.Tokens() {
		if strings.EqualFold(token.Symbol, symbol) {
			return token, true
		}
	}
	return model.Token{}, false
}

// ParamsFor returns the parameters of chainID.
func ParamsFor(chainID model.ChainID) (Params, error) {
	params, ok := paramsByChain[chainID]
	if !ok {
		return Params{}, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return params, nil
}

// SupportedChains lists chain ids in ascending order.
func SupportedChains() []model.ChainID {
	out := make([]model.ChainID, 0, len(paramsByChain))
	for id := range paramsByChain {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	v3Factory      = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v3InitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
	quoterV2       = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	swapRouter02   = common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45")
	uniMulticall   = common.HexToAddress("0x1F98415757620B543A52E61c46B32eB19261F984")
	v2Factory      = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	v2InitCodeHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

var (
	wethMainnet = model.NewToken(model.ChainMainnet, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, "WETH")
	usdcMainnet = model.NewToken(model.ChainMainnet, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6, "USDC")
	usdtMainnet = model.NewToken(model.ChainMainnet, "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6, "USDT")
	wbtcMainnet = model.NewToken(model.ChainMainnet, "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", 8, "WBTC")
	daiMainnet  = model.NewToken(model.ChainMainnet, "0x6B175474E89094C44Da98b954EedeAC495271d0F", 18, "DAI")
	feiMainnet  = model.NewToken(model.ChainMainnet, "0x956F47F50A910163D8BF957Cf5846D573E7f87CA", 18, "FEI")

	wethOptimism = model.NewToken(model.ChainOptimism, "0x4200000000000000000000000000000000000006", 18, "WETH")
	usdcOptimism = model.NewToken(model.ChainOptimism, "0x7F5c764cBc14f9669B88837ca1490cCa17c31607", 6, "USDC")
	usdtOptimism = model.NewToken(model.ChainOptimism, "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", 6, "USDT")
	wbtcOptimism = model.NewToken(model.ChainOptimism, "0x68f180fcCe6836688e9084f035309E29Bf0A2095", 8, "WBTC")
	daiOptimism  = model.NewToken(model.ChainOptimism, "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", 18, "DAI")

	wethArbitrum = model.NewToken(model.ChainArbitrum, "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", 18, "WETH")
	usdcArbitrum = model.NewToken(model.ChainArbitrum, "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8", 6, "USDC")
	usdtArbitrum = model.NewToken(model.ChainArbitrum, "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", 6, "USDT")
	wbtcArbitrum = model.NewToken(model.ChainArbitrum, "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", 8, "WBTC")
	daiArbitrum  = model.NewToken(model.ChainArbitrum, "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", 18, "DAI")

	wmaticPolygon = model.NewToken(model.ChainPolygon, "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", 18, "WMATIC")
	usdcPolygon   = model.NewToken(model.ChainPolygon, "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", 6, "USDC")
	daiPolygon    = model.NewToken(model.ChainPolygon, "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", 18, "DAI")
	wethPolygon   = model.NewToken(model.ChainPolygon, "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", 18, "WETH")

	wxdaiGnosis = model.NewToken(model.ChainGnosis, "0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d", 18, "WXDAI")
	usdcGnosis  = model.NewToken(model.ChainGnosis, "0xDDAfbb505ad214D7b80b1f830fcCc89B60fb7A83", 6, "USDC")
	usdtGnosis  = model.NewToken(model.ChainGnosis, "0x4ECaBa5870353805a9F068101A40E0f32ed605C6", 6, "USDT")
)

// paramsByChain is built once at init and never mutated.
var paramsByChain = map[model.ChainID]Params{
	model.ChainMainnet: {
		ChainID:        model.ChainMainnet,
		Name:           "mainnet",
		WrappedNative:  wethMainnet,
		USDGasTokens:   []model.Token{daiMainnet, usdcMainnet, usdtMainnet},
		BaseTokens:     []model.Token{usdcMainnet, usdtMainnet, wbtcMainnet, daiMainnet, wethMainnet, feiMainnet},
		Multicall:      uniMulticall,
		QuoterV2:       quoterV2,
		SwapRouter02:   swapRouter02,
		V3Factory:      v3Factory,
		V3InitCodeHash: v3InitCodeHash,
		V2Factory:      v2Factory,
		V2InitCodeHash: v2InitCodeHash,
		Protocols:      []model.Protocol{model.ProtocolV3, model.ProtocolV2},
		EIP1559:        true,
	},
	model.ChainOptimism: {
		ChainID:        model.ChainOptimism,
		Name:           "optimism",
		WrappedNative:  wethOptimism,
		USDGasTokens:   []model.Token{daiOptimism, usdcOptimism, usdtOptimism},
		BaseTokens:     []model.Token{daiOptimism, usdcOptimism, usdtOptimism, wbtcOptimism},
		Multicall:      uniMulticall,
		QuoterV2:       quoterV2,
		SwapRouter02:   swapRouter02,
		V3Factory:      v3Factory,
		V3InitCodeHash: v3InitCodeHash,
		Protocols:      []model.Protocol{model.ProtocolV3},
		L1Fee:          L1FeeOptimism,
		L1FeeOracle:    common.HexToAddress("0x420000000000000000000000000000000000000F"),
	},
	model.ChainArbitrum: {
		ChainID:        model.ChainArbitrum,
		Name:           "arbitrum",
		WrappedNative:  wethArbitrum,
		USDGasTokens:   []model.Token{daiArbitrum, usdcArbitrum, usdtArbitrum},
		BaseTokens:     []model.Token{daiArbitrum, usdcArbitrum, wbtcArbitrum, usdtArbitrum},
		Multicall:      common.HexToAddress("0xadF885960B47eA2CD9B55E6DAc6B42b7Cb2806dB"),
		QuoterV2:       quoterV2,
		SwapRouter02:   swapRouter02,
		V3Factory:      v3Factory,
		V3InitCodeHash: v3InitCodeHash,
		Protocols:      []model.Protocol{model.ProtocolV3},
		L1Fee:          L1FeeArbitrum,
		L1FeeOracle:    common.HexToAddress("0x000000000000000000000000000000000000006C"),
	},
	model.ChainPolygon: {
		ChainID:        model.ChainPolygon,
		Name:           "polygon",
		WrappedNative:  wmaticPolygon,
		USDGasTokens:   []model.Token{daiPolygon, usdcPolygon},
		BaseTokens:     []model.Token{usdcPolygon, wmaticPolygon, wethPolygon},
		Multicall:      uniMulticall,
		QuoterV2:       quoterV2,
		SwapRouter02:   swapRouter02,
		V3Factory:      v3Factory,
		V3InitCodeHash: v3InitCodeHash,
		Protocols:      []model.Protocol{model.ProtocolV3},
	},
	model.ChainGnosis: {
		ChainID:        model.ChainGnosis,
		Name:           "gnosis",
		WrappedNative:  wxdaiGnosis,
		USDGasTokens:   []model.Token{usdcGnosis, usdtGnosis},
		BaseTokens:     []model.Token{usdcGnosis, usdtGnosis, wxdaiGnosis},
		Multicall:      common.HexToAddress("0xe56A6B2Ed6fA3c7c3b9a4A2cE0A51d5dd0f5b8E5"),
		V2Factory:      common.HexToAddress("0xA818b4F111Ccac7AA31D0BCc0806d64F2E0737D7"),
		V2InitCodeHash: common.HexToHash("0x3f88503e8580ab941773b59034fb4b2a63e86dbc031b3633a925533ad3ed2b93"),
		Protocols:      []model.Protocol{model.ProtocolV2},
	},
}
