package decision

import (
	"context"
	"math"
	"math/big"
	"math/rand/v2"
	"testing"

	"dex-swapper/internal/account"
	"dex-swapper/internal/config"
	"dex-swapper/internal/execution"
)

type fixedSource []float64

func (f *fixedSource) Float64() float64 {
	v := (*f)[0]
	*f = (*f)[1:]
	return v
}

func TestDrawDirection_Threshold(t *testing.T) {
	src := fixedSource{0, 0.6999, 0.7, 0.99}
	want := []execution.Direction{
		execution.DirectionBuy,
		execution.DirectionBuy,
		execution.DirectionSell,
		execution.DirectionSell,
	}
	for i, w := range want {
		if got := DrawDirection(&src, DefaultBuyProbability); got != w {
			t.Errorf("draw %d = %s, want %s", i, got, w)
		}
	}
}

func TestDrawDirection_Frequency(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	const trials = 200_000

	buys := 0
	for i := 0; i < trials; i++ {
		if DrawDirection(rng, DefaultBuyProbability) == execution.DirectionBuy {
			buys++
		}
	}

	freq := float64(buys) / trials
	if math.Abs(freq-0.7) > 0.01 {
		t.Fatalf("buy frequency %.4f outside 0.7±0.01", freq)
	}
}

func TestDrawAmount_Bounds(t *testing.T) {
	limits, err := NewLimits(config.TradingConfig{
		BuyProbability: DefaultBuyProbability,
		MaxBuyAmount:   "0.01",
		MaxSellAmount:  "10",
	}, 18)
	if err != nil {
		t.Fatalf("NewLimits returned error: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for _, limit := range []*big.Int{limits.MaxBuy, limits.MaxSell, big.NewInt(1), big.NewInt(3)} {
		for i := 0; i < 10_000; i++ {
			amount := DrawAmount(rng, limit)
			if amount.Sign() <= 0 || amount.Cmp(limit) > 0 {
				t.Fatalf("amount %s outside (0, %s]", amount, limit)
			}
		}
	}
}

func TestDrawAmount_Edges(t *testing.T) {
	limit := big.NewInt(1_000_000)

	src := fixedSource{0}
	if got := DrawAmount(&src, limit); got.Cmp(limit) != 0 {
		t.Errorf("u=0 should map to the upper bound, got %s", got)
	}

	src = fixedSource{math.Nextafter(1, 0)}
	if got := DrawAmount(&src, limit); got.Sign() <= 0 {
		t.Errorf("u→1 must stay positive, got %s", got)
	}
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		value    string
		decimals int
		want     string
		wantErr  bool
	}{
		{"0.01", 18, "10000000000000000", false},
		{"10", 18, "10000000000000000000", false},
		{"1.5", 6, "1500000", false},
		{" 2 ", 0, "2", false},
		{"1.5", 0, "", true},
		{"abc", 18, "", true},
	}

	for _, tc := range cases {
		got, err := ParseUnits(tc.value, tc.decimals)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseUnits(%q, %d) expected error", tc.value, tc.decimals)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseUnits(%q, %d) returned error: %v", tc.value, tc.decimals, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseUnits(%q, %d) = %s, want %s", tc.value, tc.decimals, got, tc.want)
		}
	}
}

func TestNewLimits_RejectsNonPositive(t *testing.T) {
	if _, err := NewLimits(config.TradingConfig{MaxBuyAmount: "0", MaxSellAmount: "10"}, 18); err == nil {
		t.Fatal("expected error for zero max buy")
	}
}

type recordingTrader struct {
	accounts []*account.Account
	intents  []execution.Intent
}

func (r *recordingTrader) Execute(_ context.Context, acct *account.Account, intent execution.Intent) execution.Result {
	r.accounts = append(r.accounts, acct)
	r.intents = append(r.intents, intent)
	return execution.Result{Account: acct.Address(), Intent: intent, Executed: true}
}

func TestSelector_SelectAndRun(t *testing.T) {
	acct, err := account.FromPrivateKeyHex(0, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("FromPrivateKeyHex returned error: %v", err)
	}

	limits := Limits{BuyProbability: 0.7, MaxBuy: big.NewInt(100), MaxSell: big.NewInt(1000)}
	trader := &recordingTrader{}
	// 第一次抽方向，第二次抽数量
	src := fixedSource{0.1, 0.5, 0.9, 0.0}
	selector := NewSelector(trader, &src, limits, nil)

	first := selector.SelectAndRun(context.Background(), acct)
	second := selector.SelectAndRun(context.Background(), acct)

	if len(trader.intents) != 2 || trader.accounts[0] != acct {
		t.Fatalf("trader not invoked as expected: %+v", trader.intents)
	}
	if first.Intent.Direction != execution.DirectionBuy || first.Intent.Amount.Int64() != 50 {
		t.Errorf("first intent = %s %s, want buy 50", first.Intent.Direction, first.Intent.Amount)
	}
	if second.Intent.Direction != execution.DirectionSell || second.Intent.Amount.Int64() != 1000 {
		t.Errorf("second intent = %s %s, want sell 1000", second.Intent.Direction, second.Intent.Amount)
	}
	if !first.Executed {
		t.Errorf("selector should pass through the executor result")
	}
}
