package provider

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"

	"swaprouter/internal/model"
)

type tokenListFile struct {
	Tokens []tokenListEntry `toml:"tokens"`
}

type tokenListEntry struct {
	ChainID  uint64 `toml:"chain_id"`
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals uint8  `toml:"decimals"`
}

// LoadTokenList reads the tokens of chainID from a TOML token list:
//
//	[[tokens]]
//	chain_id = 1
//	address = "0x..."
//	symbol = "USDC"
//	decimals = 6
func LoadTokenList(path string, chainID model.ChainID) ([]model.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token list: %w", err)
	}
	return ParseTokenList(data, chainID)
}

// ParseTokenList decodes a TOML token list and keeps the entries of chainID.
func ParseTokenList(data []byte, chainID model.ChainID) ([]model.Token, error) {
	var file tokenListFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse token list: %w", err)
	}

	out := make([]model.Token, 0, len(file.Tokens))
	seen := make(map[string]struct{}, len(file.Tokens))
	for i, entry := range file.Tokens {
		if model.ChainID(entry.ChainID) != chainID {
			continue
		}
		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("token list entry %d: invalid address %q", i, entry.Address)
		}
		token := model.NewToken(chainID, entry.Address, entry.Decimals, entry.Symbol)
		if _, ok := seen[token.Key()]; ok {
			continue
		}
		seen[token.Key()] = struct{}{}
		out = append(out, token)
	}
	return out, nil
}
