package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"dex-swapper/internal/app"
	"dex-swapper/internal/config"
	"dex-swapper/internal/log"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging, map[string]interface{}{
		"environment": cfg.App.Environment,
		"network":     cfg.Chain.Network,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	swapper := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := swapper.Run(ctx); err != nil {
		if errors.Is(err, app.ErrFatalControl) {
			logger.Error("调度循环异常终止", zap.Error(err))
		} else {
			logger.Error("系统运行异常", zap.Error(err))
		}
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}
