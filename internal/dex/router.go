package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"dex-swapper/internal/account"
	"dex-swapper/internal/chain"
	"dex-swapper/internal/config"
)

// Gateway 为 dex 与执行层使用的链网关能力，chain.Client 满足该接口。
type Gateway interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Submit(ctx context.Context, acct *account.Account, to common.Address, data []byte, opts chain.TxOptions) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

var _ Gateway = (*chain.Client)(nil)

// Router 描述路由合约以及交易对两侧资产。
type Router struct {
	address common.Address
	base    common.Address
	token   common.Address
}

// NewRouter 根据配置构造 Router。
func NewRouter(cfg config.DexConfig) (*Router, error) {
	for name, addr := range map[string]string{
		"router_address": cfg.RouterAddress,
		"weth_address":   cfg.WETHAddress,
		"token_address":  cfg.TokenAddress,
	} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("dex: %s 不是合法地址: %q", name, addr)
		}
	}

	r := &Router{
		address: common.HexToAddress(cfg.RouterAddress),
		base:    common.HexToAddress(cfg.WETHAddress),
		token:   common.HexToAddress(cfg.TokenAddress),
	}
	if r.base == r.token {
		return nil, errors.New("dex: token_address 不能与 weth_address 相同")
	}
	return r, nil
}

// Address 返回路由合约地址，即授权的 spender。
func (r *Router) Address() common.Address { return r.address }

// Base 返回计价资产（包装原生币）地址。
func (r *Router) Base() common.Address { return r.base }

// Token 返回目标代币地址。
func (r *Router) Token() common.Address { return r.token }

// BuyPath 为 base→token。
func (r *Router) BuyPath() []common.Address {
	return []common.Address{r.base, r.token}
}

// SellPath 为 token→base。
func (r *Router) SellPath() []common.Address {
	return []common.Address{r.token, r.base}
}

// PackBuy 编码 swapExactETHForTokens。
func (r *Router) PackBuy(minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return routerABI.Pack("swapExactETHForTokens", minOut, path, to, deadline)
}

// PackSell 编码 swapExactTokensForETH。
func (r *Router) PackSell(amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return routerABI.Pack("swapExactTokensForETH", amountIn, minOut, path, to, deadline)
}
