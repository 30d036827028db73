package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dex-swapper/internal/account"
	"dex-swapper/internal/chain"
	"dex-swapper/internal/dex"
)

const (
	// SlippageBps 为固定滑点容忍度（基点），最少成交量 = floor(预期 * 95%)。
	SlippageBps = 500
	// DeadlineWindow 为兑换交易的有效期，超时未打包由路由合约拒绝。
	DeadlineWindow = 10 * time.Minute
	// GasLimit 为兑换交易固定的 gas 上限。
	GasLimit uint64 = 300000

	bpsDenominator = 10000
)

// ErrInvalidIntent 表示交易意图本身非法。
var ErrInvalidIntent = errors.New("invalid trade intent")

type quoteResolver interface {
	ExpectedOutput(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
}

type allowanceManager interface {
	EnsureAllowance(ctx context.Context, acct *account.Account, required *big.Int) error
}

// Executor 将交易意图转化为链上兑换，并在边界处隔离全部失败。
type Executor struct {
	gateway    dex.Gateway
	router     *dex.Router
	quoter     quoteResolver
	allowances allowanceManager
	logger     *zap.Logger
	now        func() time.Time
}

// NewExecutor 创建执行器。
func NewExecutor(gateway dex.Gateway, router *dex.Router, quoter quoteResolver, allowances allowanceManager, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		gateway:    gateway,
		router:     router,
		quoter:     quoter,
		allowances: allowances,
		logger:     logger,
		now:        time.Now,
	}
}

// MinOutput 计算 floor(expected * (1 - 5%))。
func MinOutput(expected *big.Int) *big.Int {
	out := new(big.Int).Mul(expected, big.NewInt(bpsDenominator-SlippageBps))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// Execute 执行一次兑换。任何失败都记录日志并体现在 Result.Err 中，不会向上传播。
func (e *Executor) Execute(ctx context.Context, acct *account.Account, intent Intent) Result {
	started := e.now()
	result := Result{
		Account:   acct.Address(),
		Intent:    intent,
		StartedAt: started.UTC(),
	}

	err := e.swap(ctx, acct, intent, &result)
	result.Duration = e.now().Sub(started)
	if err == nil {
		result.Executed = true
		return result
	}

	tradeErr := &TradeError{
		Kind:      classify(err),
		Account:   acct.Address(),
		Direction: intent.Direction,
		Err:       err,
	}
	if errors.Is(err, ErrInvalidIntent) {
		tradeErr.Kind = KindInvalidIntent
	}
	result.Err = tradeErr

	fields := []zap.Field{
		zap.String("account", acct.Address().Hex()),
		zap.String("direction", string(intent.Direction)),
		zap.String("kind", string(tradeErr.Kind)),
		zap.Error(err),
	}
	if result.TxHash != (common.Hash{}) {
		fields = append(fields, zap.String("tx_hash", result.TxHash.Hex()))
	}
	e.logger.Error("交易执行失败", fields...)

	return result
}

func (e *Executor) swap(ctx context.Context, acct *account.Account, intent Intent, result *Result) error {
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: 数量必须为正", ErrInvalidIntent)
	}

	var path []common.Address
	switch intent.Direction {
	case DirectionBuy:
		path = e.router.BuyPath()
	case DirectionSell:
		path = e.router.SellPath()
		if err := e.allowances.EnsureAllowance(ctx, acct, intent.Amount); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: 未知方向 %q", ErrInvalidIntent, intent.Direction)
	}

	expected, err := e.quoter.ExpectedOutput(ctx, intent.Amount, path)
	if err != nil {
		return err
	}
	minOut := MinOutput(expected)
	result.MinOut = minOut

	deadline := big.NewInt(e.now().Add(DeadlineWindow).Unix())
	to := acct.Address()

	var (
		data []byte
		opts = chain.TxOptions{GasLimit: GasLimit}
	)
	if intent.Direction == DirectionBuy {
		data, err = e.router.PackBuy(minOut, path, to, deadline)
		opts.Value = new(big.Int).Set(intent.Amount)
	} else {
		data, err = e.router.PackSell(intent.Amount, minOut, path, to, deadline)
	}
	if err != nil {
		return fmt.Errorf("%w: 编码兑换调用失败: %w", ErrInvalidIntent, err)
	}

	tx, err := e.gateway.Submit(ctx, acct, e.router.Address(), data, opts)
	if err != nil {
		return fmt.Errorf("提交兑换交易失败: %w", err)
	}
	result.TxHash = tx.Hash()

	e.logger.Info("兑换交易已发送",
		zap.String("account", to.Hex()),
		zap.String("direction", string(intent.Direction)),
		zap.Stringer("amount", intent.Amount),
		zap.Stringer("expected_out", expected),
		zap.Stringer("min_out", minOut),
		zap.String("tx_hash", tx.Hash().Hex()),
	)

	receipt, err := e.gateway.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("等待兑换交易确认失败: %w", err)
	}
	result.Receipt = receipt

	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: 交易 %s 执行失败", ErrSwapReverted, tx.Hash().Hex())
	}

	e.logger.Info("兑换交易已确认",
		zap.String("account", to.Hex()),
		zap.String("direction", string(intent.Direction)),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Stringer("block", receipt.BlockNumber),
	)

	return nil
}
