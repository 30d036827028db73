package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dex-swapper/internal/account"
	"dex-swapper/internal/decision"
	"dex-swapper/internal/execution"
)

// ErrFatalControl 表示调度循环自身出现缺陷，进程应以非零状态退出。
var ErrFatalControl = errors.New("fatal control error")

type tradeRunner interface {
	SelectAndRun(ctx context.Context, acct *account.Account) execution.Result
}

// scheduler 依次为每个账户执行一次交易，账户之间随机等待。同一时刻只有一笔交易在途。
type scheduler struct {
	accounts []*account.Account
	runner   tradeRunner
	rng      decision.Source
	minDelay time.Duration
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

func newScheduler(accounts []*account.Account, runner tradeRunner, rng decision.Source, minDelay, maxDelay time.Duration, logger *zap.Logger) *scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &scheduler{
		accounts: accounts,
		runner:   runner,
		rng:      rng,
		minDelay: minDelay,
		maxDelay: maxDelay,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// run 持续轮询账户，仅在 ctx 结束（外部终止）或出现控制缺陷时返回。
func (s *scheduler) run(ctx context.Context) (err error) {
	if len(s.accounts) == 0 {
		return fmt.Errorf("%w: 账户列表为空", ErrFatalControl)
	}
	if s.minDelay < 0 || s.maxDelay < s.minDelay {
		return fmt.Errorf("%w: 等待区间非法 [%s, %s]", ErrFatalControl, s.minDelay, s.maxDelay)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFatalControl, r)
		}
	}()

	for cycle := 1; ; cycle++ {
		for i, acct := range s.accounts {
			result := s.runner.SelectAndRun(ctx, acct)

			delay := s.nextDelay()
			s.logger.Info("账户本轮结束",
				zap.Int("cycle", cycle),
				zap.Int("index", i),
				zap.String("account", acct.Address().Hex()),
				zap.Bool("executed", result.Executed),
				zap.Duration("next_in", delay),
			)

			if err := s.sleep(ctx, delay); err != nil {
				s.logger.Info("调度循环收到退出信号，正在停止", zap.Int("cycle", cycle))
				return nil
			}
		}
	}
}

// nextDelay 在 [minDelay, maxDelay) 内均匀抽取。
func (s *scheduler) nextDelay() time.Duration {
	span := s.maxDelay - s.minDelay
	if span <= 0 {
		return s.minDelay
	}
	return s.minDelay + time.Duration(s.rng.Float64()*float64(span))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
