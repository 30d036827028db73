package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Caller 只读合约调用。
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Quoter 通过路由合约 getAmountsOut 获取预期成交量，不做缓存也不重试。
type Quoter struct {
	caller Caller
	router *Router
	logger *zap.Logger
}

// NewQuoter 创建询价器。
func NewQuoter(caller Caller, router *Router, logger *zap.Logger) *Quoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quoter{
		caller: caller,
		router: router,
		logger: logger,
	}
}

// ExpectedOutput 返回以 path 末端资产最小单位计的预期输出数量。
func (q *Quoter) ExpectedOutput(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: 输入数量必须为正", ErrQuoteUnavailable)
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: 路径至少包含两个资产", ErrQuoteUnavailable)
	}

	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("%w: 编码 getAmountsOut 失败: %w", ErrQuoteUnavailable, err)
	}

	raw, err := q.caller.Call(ctx, q.router.Address(), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}

	amounts, err := unpackAmounts(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("%w: 返回 %d 个数量，路径长度 %d", ErrQuoteUnavailable, len(amounts), len(path))
	}

	out := amounts[len(amounts)-1]
	if out == nil || out.Sign() < 0 {
		return nil, fmt.Errorf("%w: 预期输出无效", ErrQuoteUnavailable)
	}

	q.logger.Debug("询价完成",
		zap.Stringer("amount_in", amountIn),
		zap.Stringer("expected_out", out),
		zap.String("from", path[0].Hex()),
		zap.String("to", path[len(path)-1].Hex()),
	)

	return out, nil
}

func unpackAmounts(raw []byte) ([]*big.Int, error) {
	values, err := routerABI.Unpack("getAmountsOut", raw)
	if err != nil {
		return nil, fmt.Errorf("解码 getAmountsOut 失败: %w", err)
	}
	if len(values) != 1 {
		return nil, errors.New("getAmountsOut 返回值数量异常")
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut 返回类型异常: %T", values[0])
	}
	return amounts, nil
}
