package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dex-swapper/internal/account"
)

const balanceFetchConcurrency = 4

type nativeBalanceReader interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}

type tokenBalanceReader interface {
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// AccountBalance 为启动时的账户余额快照。
type AccountBalance struct {
	Account common.Address
	Native  *big.Int
	Token   *big.Int
}

// snapshotBalances 在调度开始前并发读取各账户余额，只读，不影响交易顺序。
func snapshotBalances(ctx context.Context, accounts []*account.Account, native nativeBalanceReader, token tokenBalanceReader, logger *zap.Logger) ([]AccountBalance, error) {
	balances := make([]AccountBalance, len(accounts))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(balanceFetchConcurrency)

	for i, acct := range accounts {
		group.Go(func() error {
			addr := acct.Address()
			nativeBal, err := native.Balance(groupCtx, addr)
			if err != nil {
				return fmt.Errorf("读取 %s 原生币余额失败: %w", addr.Hex(), err)
			}
			tokenBal, err := token.TokenBalance(groupCtx, addr)
			if err != nil {
				return fmt.Errorf("读取 %s 代币余额失败: %w", addr.Hex(), err)
			}
			balances[i] = AccountBalance{Account: addr, Native: nativeBal, Token: tokenBal}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, b := range balances {
		logger.Info("账户余额",
			zap.String("account", b.Account.Hex()),
			zap.Stringer("native", b.Native),
			zap.Stringer("token", b.Token),
		)
	}
	return balances, nil
}
