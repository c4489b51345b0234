package provider

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"swaprouter/internal/model"
)

// Blocklist is a set of token addresses that must never be routed through.
type Blocklist struct {
	tokens map[string]struct{}
}

// ParseBlocklist validates and normalizes addresses. Blank entries are skipped.
func ParseBlocklist(inputs []string) (Blocklist, error) {
	list := Blocklist{tokens: make(map[string]struct{}, len(inputs))}
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return Blocklist{}, fmt.Errorf("invalid address: %s", input)
		}
		list.tokens[model.NormalizeID(input)] = struct{}{}
	}
	return list, nil
}

// Blocked reports whether the token id is on the list.
func (b Blocklist) Blocked(id string) bool {
	if len(b.tokens) == 0 {
		return false
	}
	_, ok := b.tokens[model.NormalizeID(id)]
	return ok
}

func (b Blocklist) Len() int {
	return len(b.tokens)
}
