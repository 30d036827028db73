package decision

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"dex-swapper/internal/account"
	"dex-swapper/internal/config"
	"dex-swapper/internal/execution"
)

const (
	// DefaultBuyProbability 为买入方向的抽样概率。
	DefaultBuyProbability = 0.7
	// BaseDecimals 为原生币（及其包装资产）的精度。
	BaseDecimals = 18
)

// Source 为随机数来源，*rand.Rand 满足该接口，测试中可注入固定种子。
type Source interface {
	// Float64 返回 [0,1) 区间的均匀随机数。
	Float64() float64
}

// Limits 描述单次交易的抽样范围。
type Limits struct {
	BuyProbability float64
	MaxBuy         *big.Int
	MaxSell        *big.Int
}

// NewLimits 将配置中的十进制数量换算为最小单位。
func NewLimits(cfg config.TradingConfig, tokenDecimals int) (Limits, error) {
	maxBuy, err := ParseUnits(cfg.MaxBuyAmount, BaseDecimals)
	if err != nil {
		return Limits{}, fmt.Errorf("trading.max_buy_amount: %w", err)
	}
	maxSell, err := ParseUnits(cfg.MaxSellAmount, tokenDecimals)
	if err != nil {
		return Limits{}, fmt.Errorf("trading.max_sell_amount: %w", err)
	}
	if maxBuy.Sign() <= 0 || maxSell.Sign() <= 0 {
		return Limits{}, errors.New("decision: 交易数量上限必须为正")
	}
	return Limits{
		BuyProbability: cfg.BuyProbability,
		MaxBuy:         maxBuy,
		MaxSell:        maxSell,
	}, nil
}

// DrawDirection 以 buyProbability 的概率返回买入，否则卖出。与账户状态无关。
func DrawDirection(r Source, buyProbability float64) execution.Direction {
	if r.Float64() < buyProbability {
		return execution.DirectionBuy
	}
	return execution.DirectionSell
}

// DrawAmount 在 (0, limit] 内均匀抽取数量（最小单位）。
func DrawAmount(r Source, limit *big.Int) *big.Int {
	// 1-u 落在 (0,1]
	fraction := new(big.Float).SetPrec(256).SetFloat64(1 - r.Float64())
	scaled := new(big.Float).SetPrec(256).SetInt(limit)
	scaled.Mul(scaled, fraction)

	amount, _ := scaled.Int(nil)
	if amount.Sign() <= 0 {
		amount.SetInt64(1)
	}
	if amount.Cmp(limit) > 0 {
		amount.Set(limit)
	}
	return amount
}

// ParseUnits 将十进制字符串按 decimals 换算为整数最小单位，多余的小数位视为错误。
func ParseUnits(value string, decimals int) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(strings.TrimSpace(value))
	if !ok {
		return nil, fmt.Errorf("无法解析数量 %q", value)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("精度不能为负: %d", decimals)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))
	if !rat.IsInt() {
		return nil, fmt.Errorf("数量 %q 超出 %d 位精度", value, decimals)
	}
	return new(big.Int).Set(rat.Num()), nil
}

// Selector 每个调度节拍为账户抽取方向和数量并交给执行器。
type Selector struct {
	trader execution.Trader
	rng    Source
	limits Limits
	logger *zap.Logger
}

// NewSelector 创建选择器。
func NewSelector(trader execution.Trader, rng Source, limits Limits, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		trader: trader,
		rng:    rng,
		limits: limits,
		logger: logger,
	}
}

// Draw 生成一次交易意图。
func (s *Selector) Draw() execution.Intent {
	direction := DrawDirection(s.rng, s.limits.BuyProbability)
	limit := s.limits.MaxSell
	if direction == execution.DirectionBuy {
		limit = s.limits.MaxBuy
	}
	return execution.Intent{
		Direction: direction,
		Amount:    DrawAmount(s.rng, limit),
	}
}

// SelectAndRun 为账户抽取意图并同步执行。不检查余额，余额不足由链上回滚体现。
func (s *Selector) SelectAndRun(ctx context.Context, acct *account.Account) execution.Result {
	intent := s.Draw()

	s.logger.Info("开始执行随机交易",
		zap.String("account", acct.Address().Hex()),
		zap.String("direction", string(intent.Direction)),
		zap.Stringer("amount", intent.Amount),
	)

	return s.trader.Execute(ctx, acct, intent)
}
