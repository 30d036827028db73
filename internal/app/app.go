package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"dex-swapper/internal/account"
	"dex-swapper/internal/chain"
	"dex-swapper/internal/config"
	"dex-swapper/internal/decision"
	"dex-swapper/internal/dex"
	"dex-swapper/internal/execution"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run 完成启动装配后进入调度循环。启动阶段的错误与 ErrFatalControl 均会返回给调用方。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易机器人启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("network", a.cfg.Chain.Network),
		zap.String("token", a.cfg.Dex.TokenAddress),
	)

	accounts, err := account.LoadAll(a.cfg.Accounts.PrivateKeys)
	if err != nil {
		return fmt.Errorf("加载账户失败: %w", err)
	}

	router, err := dex.NewRouter(a.cfg.Dex)
	if err != nil {
		return fmt.Errorf("初始化路由失败: %w", err)
	}

	limits, err := decision.NewLimits(a.cfg.Trading, a.cfg.Dex.TokenDecimals)
	if err != nil {
		return fmt.Errorf("解析交易参数失败: %w", err)
	}

	client, err := chain.Dial(ctx, a.cfg.Chain, a.logger)
	if err != nil {
		return fmt.Errorf("连接节点失败: %w", err)
	}
	defer client.Close()

	a.logger.Info("已连接节点",
		zap.Stringer("chain_id", client.ChainID()),
		zap.Int("accounts", len(accounts)),
	)

	quoter := dex.NewQuoter(client, router, a.logger)
	allowances := dex.NewAllowances(client, router, a.logger)
	executor := execution.NewExecutor(client, router, quoter, allowances, a.logger)

	if _, err := snapshotBalances(ctx, accounts, client, allowances, a.logger); err != nil {
		a.logger.Warn("读取账户余额失败", zap.Error(err))
	}

	rng := newRand(a.cfg.Trading.Seed)
	selector := decision.NewSelector(executor, rng, limits, a.logger)
	sched := newScheduler(accounts, selector, rng, a.cfg.Trading.MinDelay, a.cfg.Trading.MaxDelay, a.logger)

	return sched.run(ctx)
}

// newRand 返回调度使用的随机源；seed 非 0 时结果可复现。
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
