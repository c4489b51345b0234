package dex

import (
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"swaprouter/internal/chain"
	"swaprouter/internal/model"
)

// ComputeV3PoolAddress derives the CREATE2 address of a V3 pool. Token order
// does not matter.
func ComputeV3PoolAddress(factory common.Address, initCodeHash common.Hash, a, b model.Token, fee model.FeeAmount) common.Address {
	token0, token1 := model.SortTokens(a, b)

	encoded := make([]byte, 0, 96)
	encoded = append(encoded, common.LeftPadBytes(token0.Address.Bytes(), 32)...)
	encoded = append(encoded, common.LeftPadBytes(token1.Address.Bytes(), 32)...)
	var feeWord [32]byte
	binary.BigEndian.PutUint32(feeWord[28:], uint32(fee))
	encoded = append(encoded, feeWord[:]...)

	salt := crypto.Keccak256Hash(encoded)
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// ComputeV2PairAddress derives the CREATE2 address of a V2 pair. Token order
// does not matter.
func ComputeV2PairAddress(factory common.Address, initCodeHash common.Hash, a, b model.Token) common.Address {
	token0, token1 := model.SortTokens(a, b)
	salt := crypto.Keccak256Hash(token0.Address.Bytes(), token1.Address.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// AddressCache memoizes pool addresses per chain. Entries are immutable once
// inserted.
type AddressCache struct {
	mu   sync.RWMutex
	data map[string]common.Address
}

func NewAddressCache() *AddressCache {
	return &AddressCache{data: make(map[string]common.Address)}
}

// V3Pool returns the pool address for (a, b, fee) on params' chain.
func (c *AddressCache) V3Pool(params chain.Params, a, b model.Token, fee model.FeeAmount) common.Address {
	token0, token1 := model.SortTokens(a, b)
	key := cacheKey(params.ChainID, token0, token1) + "/" + fee.String()
	return c.getOrCompute(key, func() common.Address {
		return ComputeV3PoolAddress(params.V3Factory, params.V3InitCodeHash, token0, token1, fee)
	})
}

// V2Pair returns the pair address for (a, b) on params' chain.
func (c *AddressCache) V2Pair(params chain.Params, a, b model.Token) common.Address {
	token0, token1 := model.SortTokens(a, b)
	key := cacheKey(params.ChainID, token0, token1)
	return c.getOrCompute(key, func() common.Address {
		return ComputeV2PairAddress(params.V2Factory, params.V2InitCodeHash, token0, token1)
	})
}

func (c *AddressCache) getOrCompute(key string, compute func() common.Address) common.Address {
	c.mu.RLock()
	address, ok := c.data[key]
	c.mu.RUnlock()
	if ok {
		return address
	}

	address = compute()
	c.mu.Lock()
	if existing, ok := c.data[key]; ok {
		address = existing
	} else {
		c.data[key] = address
	}
	c.mu.Unlock()
	return address
}

func cacheKey(chainID model.ChainID, token0, token1 model.Token) string {
	return strconv.FormatUint(uint64(chainID), 10) + "/" + token0.Key() + "/" + token1.Key()
}
