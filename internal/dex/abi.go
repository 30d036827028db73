package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Uniswap V2 Router02 中本系统用到的函数。
const routerABIJSON = `[
  {"type":"function","name":"getAmountsOut","stateMutability":"view",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable",
   "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactTokensForETH","stateMutability":"nonpayable",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	routerABI = mustParseABI("router", routerABIJSON)
	erc20ABI  = mustParseABI("erc20", erc20ABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("dex: 解析 %s ABI 失败: %v", name, err))
	}
	return parsed
}

func unpackUint(parsed abi.ABI, method string, raw []byte) (*big.Int, error) {
	values, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("解码 %s 失败: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s 返回值数量异常: %d", method, len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s 返回类型异常: %T", method, values[0])
	}
	return value, nil
}

// RouterABI 返回路由合约 ABI 副本，供测试桩解码调用数据。
func RouterABI() abi.ABI { return routerABI }

// ERC20ABI 返回 ERC-20 ABI 副本。
func ERC20ABI() abi.ABI { return erc20ABI }
