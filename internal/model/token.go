package model

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID identifies an EVM chain.
type ChainID uint64

const (
	ChainMainnet  ChainID = 1
	ChainGoerli   ChainID = 5
	ChainOptimism ChainID = 10
	ChainGnosis   ChainID = 100
	ChainPolygon  ChainID = 137
	ChainArbitrum ChainID = 42161
)

// Token is an ERC20 token. Identity is (chain, address).
type Token struct {
	ChainID  ChainID        `json:"chain_id"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
}

func NewToken(chainID ChainID, address string, decimals uint8, symbol string) Token {
	return Token{
		ChainID:  chainID,
		Address:  common.HexToAddress(address),
		Decimals: decimals,
		Symbol:   symbol,
	}
}

// Key returns the lower-case hex address used as a map key and subgraph id.
func (t Token) Key() string {
	return AddressKey(t.Address)
}

func (t Token) Equals(other Token) bool {
	return t.ChainID == other.ChainID && t.Address == other.Address
}

// SortsBefore orders tokens the way pool contracts order token0/token1.
func (t Token) SortsBefore(other Token) bool {
	return bytes.Compare(t.Address.Bytes(), other.Address.Bytes()) < 0
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// SortTokens returns the pair in pool order.
func SortTokens(a, b Token) (Token, Token) {
	if a.SortsBefore(b) {
		return a, b
	}
	return b, a
}

// AddressKey lower-cases an address for case-insensitive lookups.
func AddressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// NormalizeID lower-cases and trims a hex identifier.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// TradeType is the direction of the fixed amount.
type TradeType int

const (
	ExactInput TradeType = iota
	ExactOutput
)

func (t TradeType) String() string {
	if t == ExactOutput {
		return "EXACT_OUTPUT"
	}
	return "EXACT_INPUT"
}

func ParseTradeType(value string) (TradeType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "exactin", "exact_input", "exactinput", "in":
		return ExactInput, nil
	case "exactout", "exact_output", "exactoutput", "out":
		return ExactOutput, nil
	default:
		return ExactInput, fmt.Errorf("unknown trade type %q", value)
	}
}

// Protocol is a pool mechanism.
type Protocol string

const (
	ProtocolV2 Protocol = "V2"
	ProtocolV3 Protocol = "V3"
)

func ParseProtocol(value string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "V2":
		return ProtocolV2, nil
	case "V3":
		return ProtocolV3, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", value)
	}
}
