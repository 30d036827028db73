package execution

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"dex-swapper/internal/chain"
	"dex-swapper/internal/dex"
)

// Kind 为交易失败分类。
type Kind string

const (
	KindQuoteUnavailable    Kind = "quote_unavailable"
	KindAuthorizationFailed Kind = "authorization_failed"
	KindSwapReverted        Kind = "swap_reverted"
	KindGatewayUnavailable  Kind = "gateway_unavailable"
	KindInvalidIntent       Kind = "invalid_intent"
)

// ErrSwapReverted 表示兑换交易上链后执行失败（滑点超限、过期、余额或额度不足）。
var ErrSwapReverted = errors.New("swap reverted")

// TradeError 携带账户与方向信息的单次交易失败。
type TradeError struct {
	Kind      Kind
	Account   common.Address
	Direction Direction
	Err       error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s %s [%s]: %v", e.Account.Hex(), e.Direction, e.Kind, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// classify 按先业务后传输的顺序确定失败类型。
func classify(err error) Kind {
	switch {
	case errors.Is(err, dex.ErrQuoteUnavailable):
		return KindQuoteUnavailable
	case errors.Is(err, dex.ErrAuthorizationFailed):
		return KindAuthorizationFailed
	case errors.Is(err, ErrSwapReverted),
		errors.Is(err, chain.ErrReverted),
		errors.Is(err, chain.ErrRejected):
		return KindSwapReverted
	default:
		return KindGatewayUnavailable
	}
}
