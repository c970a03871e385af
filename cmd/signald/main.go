package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/internal/signald"
	"github.com/qiminjie89/linkkit/pkg/config"
	"github.com/qiminjie89/linkkit/pkg/logger"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "configs/signald.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadSignalConfig(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Outputs: cfg.Log.Outputs,
		Rotate: logger.RotateConfig{
			Enabled:    cfg.Log.Rotate.Enabled,
			MaxSizeMB:  cfg.Log.Rotate.MaxSizeMB,
			MaxBackups: cfg.Log.Rotate.MaxBackups,
			MaxAgeDays: cfg.Log.Rotate.MaxAgeDays,
			Compress:   cfg.Log.Rotate.Compress,
		},
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting signald",
		zap.String("config", *configPath),
	)

	server := signald.NewServer(cfg, logger.Named("signald"))
	if err := server.Start(); err != nil {
		logger.Error("start server failed", zap.Error(err))
		os.Exit(1)
	}

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	server.Stop()
}
