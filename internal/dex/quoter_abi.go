package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const quoterV2ABIJSON = `[
  {
    "inputs": [
      {"internalType": "bytes", "name": "path", "type": "bytes"},
      {"internalType": "uint256", "name": "amountIn", "type": "uint256"}
    ],
    "name": "quoteExactInput",
    "outputs": [
      {"internalType": "uint256", "name": "amountOut", "type": "uint256"},
      {"internalType": "uint160[]", "name": "sqrtPriceX96AfterList", "type": "uint160[]"},
      {"internalType": "uint32[]", "name": "initializedTicksCrossedList", "type": "uint32[]"},
      {"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes", "name": "path", "type": "bytes"},
      {"internalType": "uint256", "name": "amountOut", "type": "uint256"}
    ],
    "name": "quoteExactOutput",
    "outputs": [
      {"internalType": "uint256", "name": "amountIn", "type": "uint256"},
      {"internalType": "uint160[]", "name": "sqrtPriceX96AfterList", "type": "uint160[]"},
      {"internalType": "uint32[]", "name": "initializedTicksCrossedList", "type": "uint32[]"},
      {"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const swapRouter02ABIJSON = `[
  {
    "inputs": [
      {"internalType": "uint256", "name": "deadline", "type": "uint256"},
      {"internalType": "bytes[]", "name": "data", "type": "bytes[]"}
    ],
    "name": "multicall",
    "outputs": [{"internalType": "bytes[]", "name": "", "type": "bytes[]"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {
        "components": [
          {"internalType": "bytes", "name": "path", "type": "bytes"},
          {"internalType": "address", "name": "recipient", "type": "address"},
          {"internalType": "uint256", "name": "amountIn", "type": "uint256"},
          {"internalType": "uint256", "name": "amountOutMinimum", "type": "uint256"}
        ],
        "internalType": "struct IV3SwapRouter.ExactInputParams",
        "name": "params",
        "type": "tuple"
      }
    ],
    "name": "exactInput",
    "outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {
        "components": [
          {"internalType": "bytes", "name": "path", "type": "bytes"},
          {"internalType": "address", "name": "recipient", "type": "address"},
          {"internalType": "uint256", "name": "amountOut", "type": "uint256"},
          {"internalType": "uint256", "name": "amountInMaximum", "type": "uint256"}
        ],
        "internalType": "struct IV3SwapRouter.ExactOutputParams",
        "name": "params",
        "type": "tuple"
      }
    ],
    "name": "exactOutput",
    "outputs": [{"internalType": "uint256", "name": "amountIn", "type": "uint256"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "amountIn", "type": "uint256"},
      {"internalType": "uint256", "name": "amountOutMin", "type": "uint256"},
      {"internalType": "address[]", "name": "path", "type": "address[]"},
      {"internalType": "address", "name": "to", "type": "address"}
    ],
    "name": "swapExactTokensForTokens",
    "outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "amountOut", "type": "uint256"},
      {"internalType": "uint256", "name": "amountInMax", "type": "uint256"},
      {"internalType": "address[]", "name": "path", "type": "address[]"},
      {"internalType": "address", "name": "to", "type": "address"}
    ],
    "name": "swapTokensForExactTokens",
    "outputs": [{"internalType": "uint256", "name": "amountIn", "type": "uint256"}],
    "stateMutability": "payable",
    "type": "function"
  }
]`

var (
	quoterV2ABI     abi.ABI
	quoterV2ABIOnce sync.Once
	quoterV2ABIErr  error

	swapRouter02ABI     abi.ABI
	swapRouter02ABIOnce sync.Once
	swapRouter02ABIErr  error
)

// QuoterV2ABI returns the parsed QuoterV2 ABI.
func QuoterV2ABI() (abi.ABI, error) {
	quoterV2ABIOnce.Do(func() {
		quoterV2ABI, quoterV2ABIErr = abi.JSON(strings.NewReader(quoterV2ABIJSON))
	})
	return quoterV2ABI, quoterV2ABIErr
}

// SwapRouter02ABI returns the subset of the SwapRouter02 ABI used for
// execution call data.
func SwapRouter02ABI() (abi.ABI, error) {
	swapRouter02ABIOnce.Do(func() {
		swapRouter02ABI, swapRouter02ABIErr = abi.JSON(strings.NewReader(swapRouter02ABIJSON))
	})
	return swapRouter02ABI, swapRouter02ABIErr
}
