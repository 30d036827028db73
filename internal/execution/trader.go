package execution

import (
	"context"

	"dex-swapper/internal/account"
)

// Trader 抽象执行器接口，便于在调度测试中替换。
type Trader interface {
	Execute(ctx context.Context, acct *account.Account, intent Intent) Result
}

var _ Trader = (*Executor)(nil)
