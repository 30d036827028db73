package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Dex      DexConfig      `mapstructure:"dex"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ChainConfig 描述区块链节点连接信息。
type ChainConfig struct {
	Network         string `mapstructure:"network"`
	RPCURL          string `mapstructure:"rpc_url"`
	InfuraProjectID string `mapstructure:"infura_project_id"`
	ChainID         int64  `mapstructure:"chain_id"`
}

// Endpoint 返回实际使用的 RPC 地址，未显式配置时按 Infura 规则拼接。
func (c ChainConfig) Endpoint() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	if c.InfuraProjectID == "" {
		return ""
	}
	network := strings.ToLower(strings.TrimSpace(c.Network))
	if network == "" {
		network = "mainnet"
	}
	return fmt.Sprintf("https://%s.infura.io/v3/%s", network, c.InfuraProjectID)
}

// DexConfig 描述去中心化交易所合约地址。
type DexConfig struct {
	RouterAddress string `mapstructure:"router_address"`
	WETHAddress   string `mapstructure:"weth_address"`
	TokenAddress  string `mapstructure:"token_address"`
	TokenDecimals int    `mapstructure:"token_decimals"`
}

// AccountsConfig 为有序的账户私钥列表。
type AccountsConfig struct {
	PrivateKeys []string `mapstructure:"private_keys"`
}

// TradingConfig 控制随机交易的节奏与规模。
type TradingConfig struct {
	BuyProbability float64       `mapstructure:"buy_probability"`
	MaxBuyAmount   string        `mapstructure:"max_buy_amount"`
	MaxSellAmount  string        `mapstructure:"max_sell_amount"`
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Seed           uint64        `mapstructure:"seed"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Chain.Endpoint() == "" {
		err = multierr.Append(err, errors.New("chain.rpc_url 与 chain.infura_project_id 至少配置一项"))
	}
	if c.Chain.ChainID < 0 {
		err = multierr.Append(err, errors.New("chain.chain_id 不能为负"))
	}
	if !common.IsHexAddress(c.Dex.RouterAddress) {
		err = multierr.Append(err, fmt.Errorf("dex.router_address 不是合法地址: %q", c.Dex.RouterAddress))
	}
	if !common.IsHexAddress(c.Dex.WETHAddress) {
		err = multierr.Append(err, fmt.Errorf("dex.weth_address 不是合法地址: %q", c.Dex.WETHAddress))
	}
	if c.Dex.TokenAddress == "" {
		err = multierr.Append(err, errors.New("dex.token_address 不能为空"))
	} else if !common.IsHexAddress(c.Dex.TokenAddress) {
		err = multierr.Append(err, fmt.Errorf("dex.token_address 不是合法地址: %q", c.Dex.TokenAddress))
	}
	if c.Dex.TokenDecimals < 0 || c.Dex.TokenDecimals > 36 {
		err = multierr.Append(err, errors.New("dex.token_decimals 必须位于[0,36]"))
	}
	if len(c.Accounts.PrivateKeys) == 0 {
		err = multierr.Append(err, errors.New("accounts.private_keys 至少包含一个私钥"))
	}
	for i, key := range c.Accounts.PrivateKeys {
		if strings.TrimSpace(key) == "" {
			err = multierr.Append(err, fmt.Errorf("accounts.private_keys[%d] 为空", i))
		}
	}
	if c.Trading.BuyProbability < 0 || c.Trading.BuyProbability > 1 {
		err = multierr.Append(err, errors.New("trading.buy_probability 必须位于[0,1]"))
	}
	if !positiveDecimal(c.Trading.MaxBuyAmount) {
		err = multierr.Append(err, fmt.Errorf("trading.max_buy_amount 必须为正数: %q", c.Trading.MaxBuyAmount))
	}
	if !positiveDecimal(c.Trading.MaxSellAmount) {
		err = multierr.Append(err, fmt.Errorf("trading.max_sell_amount 必须为正数: %q", c.Trading.MaxSellAmount))
	}
	if c.Trading.MinDelay < 0 || c.Trading.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("trading.delay 必须为正"))
	}
	if c.Trading.MinDelay > c.Trading.MaxDelay {
		err = multierr.Append(err, errors.New("trading.min_delay 不能大于 max_delay"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func positiveDecimal(value string) bool {
	f, ok := new(big.Float).SetString(strings.TrimSpace(value))
	return ok && f.Sign() > 0
}
