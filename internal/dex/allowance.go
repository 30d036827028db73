package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dex-swapper/internal/account"
	"dex-swapper/internal/chain"
)

// Allowances 保证账户在卖出前已授予路由合约足够的代币额度。
type Allowances struct {
	gateway Gateway
	token   common.Address
	spender common.Address
	logger  *zap.Logger
}

// NewAllowances 创建授权管理器，spender 一般为路由合约。
func NewAllowances(gateway Gateway, router *Router, logger *zap.Logger) *Allowances {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allowances{
		gateway: gateway,
		token:   router.Token(),
		spender: router.Address(),
		logger:  logger,
	}
}

// Allowance 读取 owner 当前对 spender 的授权额度。
func (a *Allowances) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, a.spender)
	if err != nil {
		return nil, fmt.Errorf("编码 allowance 失败: %w", err)
	}
	raw, err := a.gateway.Call(ctx, a.token, data)
	if err != nil {
		return nil, err
	}
	return unpackUint(erc20ABI, "allowance", raw)
}

// EnsureAllowance 额度不足 required 时发起 approve 并等待确认；额度充足时不发送任何交易。
func (a *Allowances) EnsureAllowance(ctx context.Context, acct *account.Account, required *big.Int) error {
	if required == nil || required.Sign() <= 0 {
		return fmt.Errorf("%w: 授权数量必须为正", ErrAuthorizationFailed)
	}

	current, err := a.Allowance(ctx, acct.Address())
	if err != nil {
		return fmt.Errorf("%w: 读取授权额度失败: %w", ErrAuthorizationFailed, err)
	}
	if current.Cmp(required) >= 0 {
		return nil
	}

	data, err := erc20ABI.Pack("approve", a.spender, required)
	if err != nil {
		return fmt.Errorf("%w: 编码 approve 失败: %w", ErrAuthorizationFailed, err)
	}

	tx, err := a.gateway.Submit(ctx, acct, a.token, data, chain.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: 发送 approve 失败: %w", ErrAuthorizationFailed, err)
	}

	a.logger.Info("代币授权交易已发送",
		zap.String("account", acct.Address().Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Stringer("current", current),
		zap.Stringer("required", required),
	)

	receipt, err := a.gateway.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: 等待 approve 确认失败: %w", ErrAuthorizationFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: approve 交易 %s 执行失败", ErrAuthorizationFailed, tx.Hash().Hex())
	}

	a.logger.Info("代币授权已确认",
		zap.String("account", acct.Address().Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}

// TokenBalance 读取 owner 持有的目标代币数量。
func (a *Allowances) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("编码 balanceOf 失败: %w", err)
	}
	raw, err := a.gateway.Call(ctx, a.token, data)
	if err != nil {
		return nil, err
	}
	return unpackUint(erc20ABI, "balanceOf", raw)
}
