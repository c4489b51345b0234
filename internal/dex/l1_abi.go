package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// OP-stack GasPriceOracle predeploy.
const gasPriceOracleABIJSON = `[
  {"inputs": [], "name": "l1BaseFee", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "overhead", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "scalar", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// Arbitrum ArbGasInfo precompile.
const arbGasInfoABIJSON = `[
  {
    "inputs": [],
    "name": "getPricesInWei",
    "outputs": [
      {"internalType": "uint256", "name": "", "type": "uint256"},
      {"internalType": "uint256", "name": "", "type": "uint256"},
      {"internalType": "uint256", "name": "", "type": "uint256"},
      {"internalType": "uint256", "name": "", "type": "uint256"},
      {"internalType": "uint256", "name": "", "type": "uint256"},
      {"internalType": "uint256", "name": "", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	gasPriceOracleABI     abi.ABI
	gasPriceOracleABIOnce sync.Once
	gasPriceOracleABIErr  error

	arbGasInfoABI     abi.ABI
	arbGasInfoABIOnce sync.Once
	arbGasInfoABIErr  error
)

func GasPriceOracleABI() (abi.ABI, error) {
	gasPriceOracleABIOnce.Do(func() {
		gasPriceOracleABI, gasPriceOracleABIErr = abi.JSON(strings.NewReader(gasPriceOracleABIJSON))
	})
	return gasPriceOracleABI, gasPriceOracleABIErr
}

func ArbGasInfoABI() (abi.ABI, error) {
	arbGasInfoABIOnce.Do(func() {
		arbGasInfoABI, arbGasInfoABIErr = abi.JSON(strings.NewReader(arbGasInfoABIJSON))
	})
	return arbGasInfoABI, arbGasInfoABIErr
}
