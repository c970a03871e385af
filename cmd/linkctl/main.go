package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/config"
	"github.com/qiminjie89/linkkit/pkg/logger"
)

var (
	// 全局参数
	cfgFile  string
	kindFlag string
	target   string
	insecure bool
	logLevel string
	timeout  time.Duration
	linkCfg  *config.LinkConfig
)

var rootCmd = &cobra.Command{
	Use:   "linkctl",
	Short: "linkctl opens a single transport connection and exchanges messages over it",
	Long: `linkctl drives the linkkit transport layer from the command line.
It can connect to a peer and send messages, accept exactly one peer and echo
its messages back, answer a WebRTC offer through a signaling relay, and mint
signaling tokens.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "token" {
			return nil
		}
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		// 命令行覆盖配置
		if kindFlag != "" {
			cfg.Transport.Kind = kindFlag
		}
		if target != "" {
			cfg.Transport.Target = target
		}
		if insecure {
			cfg.QUIC.InsecureSkipVerify = true
			cfg.WebTransport.InsecureSkipVerify = true
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		linkCfg = cfg

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
			return fmt.Errorf("init logger: %w", err)
		}
		if cfg.Metrics.Enabled {
			go serveMetrics(cfg.Metrics.Addr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func loadConfig(path string) (*config.LinkConfig, error) {
	if path == "" {
		cfg := &config.LinkConfig{}
		cfg.SetDefaults()
		return cfg, nil
	}
	return config.LoadLinkConfig(path)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("starting metrics server", zap.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server error", zap.Error(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVarP(&kindFlag, "kind", "k", "", "transport kind: quic, websocket, webrtc, webtransport")
	rootCmd.PersistentFlags().StringVar(&target, "target", "", "execution target: native, sandboxed (default is the current build)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall timeout, 0 waits forever")

	rootCmd.AddCommand(connectCmd, listenCmd, answerCmd, eventsCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
