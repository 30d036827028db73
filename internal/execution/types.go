package execution

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Direction 表示兑换方向。
type Direction string

const (
	// DirectionBuy 花费计价资产买入代币。
	DirectionBuy Direction = "buy"
	// DirectionSell 卖出代币换回计价资产。
	DirectionSell Direction = "sell"
)

// Intent 为一次调度产生的交易意图，即用即弃。
type Intent struct {
	Direction Direction
	// Amount 为输入资产的最小单位数量。
	Amount *big.Int
}

// Result 为一次交易尝试的结果。Err 非空表示本轮失败但已被隔离。
type Result struct {
	Account   common.Address
	Intent    Intent
	Executed  bool
	TxHash    common.Hash
	Receipt   *types.Receipt
	MinOut    *big.Int
	StartedAt time.Time
	Duration  time.Duration
	Err       *TradeError
}

// Failed 判断本次尝试是否失败。
func (r Result) Failed() bool {
	return r.Err != nil
}
