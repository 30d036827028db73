// Package dextest 提供内存中的路由合约与 ERC-20 代币桩，用于测试询价、授权与兑换流程。
package dextest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"dex-swapper/internal/account"
	"dex-swapper/internal/chain"
	"dex-swapper/internal/dex"
)

// Submission 记录一笔被提交的交易。
type Submission struct {
	From     common.Address
	To       common.Address
	Method   string
	Args     []interface{}
	Value    *big.Int
	GasLimit uint64
	Tx       *types.Transaction
}

// Chain 模拟链网关。所有钩子均可为空。
type Chain struct {
	Router common.Address
	Token  common.Address

	// QuoteFn 计算 getAmountsOut 结果，默认输出等于输入的两倍。
	QuoteFn func(amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	// CallHook 返回非空错误时该只读调用失败。
	CallHook func(from common.Address, method string, args []interface{}) error
	// SubmitHook 返回非空错误时该交易提交失败。
	SubmitHook func(from common.Address, method string) error
	// StatusFn 决定回执状态，默认成功。
	StatusFn func(sub Submission) uint64

	mu          sync.Mutex
	allowances  map[common.Address]*big.Int
	submissions []Submission
	events      []string
	nonce       uint64
}

// New 创建模拟链。
func New(router, token common.Address) *Chain {
	return &Chain{
		Router:     router,
		Token:      token,
		allowances: make(map[common.Address]*big.Int),
	}
}

var _ dex.Gateway = (*Chain)(nil)

// SetAllowance 设置 owner 对路由合约的授权额度。
func (c *Chain) SetAllowance(owner common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowances[owner] = new(big.Int).Set(amount)
}

// AllowanceOf 返回当前授权额度。
func (c *Chain) AllowanceOf(owner common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.allowances[owner]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Submissions 返回已提交交易的副本。
func (c *Chain) Submissions() []Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Submission, len(c.submissions))
	copy(out, c.submissions)
	return out
}

// Events 按发生顺序返回 "call:<method>"、"submit:<method>"、"mined:<method>" 事件。
func (c *Chain) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

// Call 实现只读调用。
func (c *Chain) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	contractABI, err := c.abiFor(to)
	if err != nil {
		return nil, err
	}
	method, args, err := decode(contractABI, data)
	if err != nil {
		return nil, err
	}

	c.record("call:" + method.Name)

	if c.CallHook != nil {
		var from common.Address
		if len(args) > 0 {
			if addr, ok := args[0].(common.Address); ok {
				from = addr
			}
		}
		if err := c.CallHook(from, method.Name, args); err != nil {
			return nil, err
		}
	}

	switch method.Name {
	case "getAmountsOut":
		amountIn := args[0].(*big.Int)
		path := args[1].([]common.Address)
		amounts, err := c.quote(amountIn, path)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(amounts)
	case "allowance":
		owner := args[0].(common.Address)
		return method.Outputs.Pack(c.AllowanceOf(owner))
	case "balanceOf":
		return method.Outputs.Pack(big.NewInt(0))
	default:
		return nil, fmt.Errorf("dextest: 不支持的只读调用 %s", method.Name)
	}
}

// Submit 记录交易并返回未签名交易对象。
func (c *Chain) Submit(_ context.Context, acct *account.Account, to common.Address, data []byte, opts chain.TxOptions) (*types.Transaction, error) {
	contractABI, err := c.abiFor(to)
	if err != nil {
		return nil, err
	}
	method, args, err := decode(contractABI, data)
	if err != nil {
		return nil, err
	}

	if c.SubmitHook != nil {
		if err := c.SubmitHook(acct.Address(), method.Name); err != nil {
			return nil, err
		}
	}

	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonce,
		GasPrice: big.NewInt(1),
		Gas:      opts.GasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	c.nonce++

	c.submissions = append(c.submissions, Submission{
		From:     acct.Address(),
		To:       to,
		Method:   method.Name,
		Args:     args,
		Value:    new(big.Int).Set(value),
		GasLimit: opts.GasLimit,
		Tx:       tx,
	})
	c.events = append(c.events, "submit:"+method.Name)
	return tx, nil
}

// WaitMined 立即返回回执；成功的 approve 会更新授权额度。
func (c *Chain) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.submissions {
		if sub.Tx.Hash() != tx.Hash() {
			continue
		}

		status := types.ReceiptStatusSuccessful
		if c.StatusFn != nil {
			status = c.StatusFn(sub)
		}
		if status == types.ReceiptStatusSuccessful && sub.Method == "approve" {
			c.allowances[sub.From] = new(big.Int).Set(sub.Args[1].(*big.Int))
		}

		c.events = append(c.events, "mined:"+sub.Method)
		return &types.Receipt{
			Status:      status,
			TxHash:      tx.Hash(),
			GasUsed:     21000 + uint64(len(tx.Data())),
			BlockNumber: big.NewInt(int64(tx.Nonce()) + 1),
		}, nil
	}
	return nil, errors.New("dextest: 未知交易")
}

func (c *Chain) quote(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if c.QuoteFn != nil {
		return c.QuoteFn(amountIn, path)
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 1; i < len(path); i++ {
		amounts[i] = new(big.Int).Mul(amounts[i-1], big.NewInt(2))
	}
	return amounts, nil
}

func (c *Chain) record(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *Chain) abiFor(to common.Address) (abi.ABI, error) {
	switch to {
	case c.Router:
		return dex.RouterABI(), nil
	case c.Token:
		return dex.ERC20ABI(), nil
	default:
		return abi.ABI{}, fmt.Errorf("dextest: 未知合约 %s", to.Hex())
	}
}

func decode(contractABI abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("dextest: 调用数据过短")
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}
