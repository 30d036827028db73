package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"dex-swapper/internal/account"
	"dex-swapper/internal/config"
)

// Backend 为 Client 依赖的节点能力，*ethclient.Client 满足该接口。
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// TxOptions 控制单笔交易的附加参数。
type TxOptions struct {
	// Value 为随交易转入合约的原生币数量，nil 表示 0。
	Value *big.Int
	// GasLimit 为 0 时通过 eth_estimateGas 估算。
	GasLimit uint64
}

// Client 是面向全部账户共享的链网关。
type Client struct {
	backend Backend
	chainID *big.Int
	signer  types.Signer
	logger  *zap.Logger
	closer  func()
}

// Dial 连接配置中的 RPC 节点。chain_id 未配置时向节点查询。
func Dial(ctx context.Context, cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	endpoint := cfg.Endpoint()
	if endpoint == "" {
		return nil, errors.New("chain: 未配置 RPC 地址")
	}

	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, classifyError("dial", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, classifyError("chain_id", err)
		}
	}

	client := NewClient(eth, chainID, logger)
	client.closer = eth.Close
	return client, nil
}

// NewClient 基于已有 Backend 构造网关。
func NewClient(backend Backend, chainID *big.Int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		backend: backend,
		chainID: new(big.Int).Set(chainID),
		signer:  types.LatestSignerForChainID(chainID),
		logger:  logger,
	}
}

// ChainID 返回签名使用的链 ID。
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close 释放底层连接。
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Call 在最新区块上执行只读合约调用。
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, classifyError("eth_call", err)
	}
	return out, nil
}

// Balance 返回地址的原生币余额。
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, classifyError("eth_getBalance", err)
	}
	return balance, nil
}

// Submit 使用账户私钥签名并广播交易。
func (c *Client) Submit(ctx context.Context, acct *account.Account, to common.Address, data []byte, opts TxOptions) (*types.Transaction, error) {
	from := acct.Address()

	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classifyError("eth_getTransactionCount", err)
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return nil, classifyError("eth_estimateGas", err)
		}
	}

	txData, err := c.priceTx(ctx, nonce, gasLimit, to, value, data)
	if err != nil {
		return nil, err
	}

	tx, err := types.SignNewTx(acct.PrivateKey(), c.signer, txData)
	if err != nil {
		return nil, fmt.Errorf("chain: 交易签名失败: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, classifyError("eth_sendRawTransaction", err)
	}

	c.logger.Debug("交易已广播",
		zap.String("account", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit),
	)

	return tx, nil
}

// priceTx 在支持 EIP-1559 的链上构造动态费用交易，否则退回 legacy 交易。
func (c *Client) priceTx(ctx context.Context, nonce, gasLimit uint64, to common.Address, value *big.Int, data []byte) (types.TxData, error) {
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, classifyError("eth_getBlockByNumber", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, classifyError("eth_gasPrice", err)
		}
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		}, nil
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, classifyError("eth_maxPriorityFeePerGas", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return &types.DynamicFeeTx{
		ChainID:   c.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	}, nil
}

// WaitMined 阻塞直至交易被打包，仅受 ctx 约束。
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, classifyError("wait_mined", err)
	}
	return receipt, nil
}
