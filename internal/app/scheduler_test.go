package app

import (
	"context"
	"errors"
	"math/big"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dex-swapper/internal/account"
	"dex-swapper/internal/chain"
	"dex-swapper/internal/config"
	"dex-swapper/internal/decision"
	"dex-swapper/internal/dex"
	"dex-swapper/internal/dex/dextest"
	"dex-swapper/internal/execution"
)

const (
	testToken = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	keyA      = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	keyB      = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

type runnerFunc func(ctx context.Context, acct *account.Account) execution.Result

func (f runnerFunc) SelectAndRun(ctx context.Context, acct *account.Account) execution.Result {
	return f(ctx, acct)
}

// stopAfter 记录每次等待时长，第 n 次等待时取消上下文。
func stopAfter(n int, cancel context.CancelFunc, delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		if len(*delays) >= n {
			cancel()
			return ctx.Err()
		}
		return nil
	}
}

func mustAccount(t *testing.T, index int, key string) *account.Account {
	t.Helper()
	acct, err := account.FromPrivateKeyHex(index, key)
	if err != nil {
		t.Fatalf("FromPrivateKeyHex returned error: %v", err)
	}
	return acct
}

func TestScheduler_RoundRobinOrder(t *testing.T) {
	accounts := []*account.Account{
		mustAccount(t, 0, keyA),
		mustAccount(t, 1, keyB),
		mustAccount(t, 2, keyA),
	}

	var visited []int
	runner := runnerFunc(func(_ context.Context, acct *account.Account) execution.Result {
		visited = append(visited, acct.Index())
		return execution.Result{Account: acct.Address(), Executed: true}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	s := newScheduler(accounts, runner, rand.New(rand.NewPCG(3, 4)), 30*time.Second, 90*time.Second, nil)
	s.sleep = stopAfter(7, cancel, &delays)

	if err := s.run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	want := []int{0, 1, 2, 0, 1, 2, 0}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}
	if len(delays) != len(visited) {
		t.Fatalf("expected one wait per trade, got %d waits for %d trades", len(delays), len(visited))
	}
	for _, d := range delays {
		if d < 30*time.Second || d >= 90*time.Second {
			t.Errorf("delay %s outside [30s, 90s)", d)
		}
	}
}

func TestScheduler_NextDelayBounds(t *testing.T) {
	s := newScheduler(nil, nil, rand.New(rand.NewPCG(9, 9)), 30*time.Second, 90*time.Second, nil)

	var lowSeen, highSeen bool
	for i := 0; i < 10_000; i++ {
		d := s.nextDelay()
		if d < 30*time.Second || d >= 90*time.Second {
			t.Fatalf("delay %s outside [30s, 90s)", d)
		}
		lowSeen = lowSeen || d < 35*time.Second
		highSeen = highSeen || d > 85*time.Second
	}
	if !lowSeen || !highSeen {
		t.Fatalf("delays do not cover the window: low=%v high=%v", lowSeen, highSeen)
	}

	fixed := newScheduler(nil, nil, rand.New(rand.NewPCG(1, 1)), time.Second, time.Second, nil)
	if d := fixed.nextDelay(); d != time.Second {
		t.Fatalf("degenerate window should return min delay, got %s", d)
	}
}

func TestScheduler_StopsOnCancelledContext(t *testing.T) {
	calls := 0
	runner := runnerFunc(func(_ context.Context, acct *account.Account) execution.Result {
		calls++
		return execution.Result{Account: acct.Address()}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScheduler([]*account.Account{mustAccount(t, 0, keyA)}, runner, rand.New(rand.NewPCG(1, 2)), time.Hour, 2*time.Hour, nil)
	if err := s.run(ctx); err != nil {
		t.Fatalf("external termination should not be reported as error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one trade before stopping, got %d", calls)
	}
}

func TestScheduler_FatalControl(t *testing.T) {
	noop := runnerFunc(func(_ context.Context, acct *account.Account) execution.Result {
		return execution.Result{}
	})
	panicking := runnerFunc(func(_ context.Context, acct *account.Account) execution.Result {
		panic("broken selector")
	})
	accounts := []*account.Account{mustAccount(t, 0, keyA)}
	rng := rand.New(rand.NewPCG(1, 2))

	cases := []struct {
		name  string
		sched *scheduler
	}{
		{"empty accounts", newScheduler(nil, noop, rng, time.Second, 2*time.Second, nil)},
		{"inverted window", newScheduler(accounts, noop, rng, 2*time.Second, time.Second, nil)},
		{"negative delay", newScheduler(accounts, noop, rng, -time.Second, time.Second, nil)},
		{"panic", newScheduler(accounts, panicking, rng, time.Second, 2*time.Second, nil)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.sched.sleep = func(context.Context, time.Duration) error { return nil }
			err := tc.sched.run(context.Background())
			if !errors.Is(err, ErrFatalControl) {
				t.Fatalf("expected ErrFatalControl, got %v", err)
			}
		})
	}
}

// 账户 A 的所有交易提交均被节点拒绝，账户 B 仍需按轮次完成兑换。
func TestScheduler_FailureIsolation(t *testing.T) {
	router, err := dex.NewRouter(config.DexConfig{
		RouterAddress: config.DefaultRouterAddress,
		WETHAddress:   config.DefaultWETHAddress,
		TokenAddress:  testToken,
	})
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}

	acctA := mustAccount(t, 0, keyA)
	acctB := mustAccount(t, 1, keyB)

	fake := dextest.New(router.Address(), router.Token())
	fake.SubmitHook = func(from common.Address, method string) error {
		if from == acctA.Address() {
			return chain.ErrRejected
		}
		return nil
	}

	executor := execution.NewExecutor(fake, router, dex.NewQuoter(fake, router, nil), dex.NewAllowances(fake, router, nil), nil)
	limits := decision.Limits{
		BuyProbability: decision.DefaultBuyProbability,
		MaxBuy:         big.NewInt(1_000_000),
		MaxSell:        big.NewInt(5_000_000),
	}
	rng := rand.New(rand.NewPCG(11, 12))
	selector := decision.NewSelector(executor, rng, limits, nil)

	var failedA, okB int
	runner := runnerFunc(func(ctx context.Context, acct *account.Account) execution.Result {
		result := selector.SelectAndRun(ctx, acct)
		switch {
		case acct == acctA && result.Failed():
			failedA++
		case acct == acctB && !result.Failed() && result.Executed:
			okB++
		}
		return result
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	s := newScheduler([]*account.Account{acctA, acctB}, runner, rng, time.Second, 2*time.Second, nil)
	s.sleep = stopAfter(8, cancel, &delays)

	if err := s.run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if failedA != 4 {
		t.Errorf("expected 4 failed trades for account A, got %d", failedA)
	}
	if okB != 4 {
		t.Errorf("expected 4 successful trades for account B, got %d", okB)
	}

	swaps := 0
	for _, sub := range fake.Submissions() {
		if sub.From == acctA.Address() {
			t.Fatalf("account A should have no accepted submissions, got %s", sub.Method)
		}
		if sub.Method == "swapExactETHForTokens" || sub.Method == "swapExactTokensForETH" {
			swaps++
		}
	}
	if swaps != 4 {
		t.Errorf("expected 4 swaps from account B, got %d", swaps)
	}
}
