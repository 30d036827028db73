package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvPath    = ".env"
	envPrefix         = "swapper"

	// DefaultRouterAddress 为以太坊主网 Uniswap V2 Router02。
	DefaultRouterAddress = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	// DefaultWETHAddress 为以太坊主网 WETH。
	DefaultWETHAddress = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

// Load 读取配置文件并结合环境变量返回 Config。
// 配置文件缺失时仅使用默认值与环境变量，便于只通过 .env 部署。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(defaultEnvPath); err != nil {
		return nil, err
	}

	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("chain.network", "mainnet")
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.infura_project_id", "")
	v.SetDefault("chain.chain_id", 0)

	v.SetDefault("dex.router_address", DefaultRouterAddress)
	v.SetDefault("dex.weth_address", DefaultWETHAddress)
	v.SetDefault("dex.token_address", "")
	v.SetDefault("dex.token_decimals", 18)

	v.SetDefault("accounts.private_keys", []string{})

	v.SetDefault("trading.buy_probability", 0.7)
	v.SetDefault("trading.max_buy_amount", "0.01")
	v.SetDefault("trading.max_sell_amount", "10")
	v.SetDefault("trading.min_delay", "30s")
	v.SetDefault("trading.max_delay", "90s")
	v.SetDefault("trading.seed", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

// bindEnv 兼容未带前缀的常用环境变量。
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("chain.network", "SWAPPER_CHAIN_NETWORK", "NETWORK")
	_ = v.BindEnv("chain.infura_project_id", "SWAPPER_CHAIN_INFURA_PROJECT_ID", "INFURA_PROJECT_ID")
	_ = v.BindEnv("dex.token_address", "SWAPPER_DEX_TOKEN_ADDRESS", "TOKEN_ADDRESS")
	_ = v.BindEnv("accounts.private_keys", "SWAPPER_ACCOUNTS_PRIVATE_KEYS", "PRIVATE_KEYS")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
