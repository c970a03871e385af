// Package logger 提供结构化日志功能
//
// 二进制在启动时调用 Init，再把 L() 注入 transport 等库；库本身默认不输出日志。
package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var defaultLogger *zap.Logger

// Config 日志配置
type Config struct {
	Level   string   // debug, info, warn, error
	Format  string   // json, console
	Outputs []string // stdout, stderr, 文件路径；为空时输出到 stdout
	Rotate  RotateConfig
}

// RotateConfig 文件输出的滚动参数，Enabled 为 false 时直接追加写文件
type RotateConfig struct {
	Enabled    bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init 初始化日志
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// New 按配置构建 logger，每个输出一个 core
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	cores := make([]zapcore.Core, 0, len(outputs))
	for _, out := range outputs {
		writer, err := openOutput(out, cfg.Rotate)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, writer, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func openOutput(out string, rotate RotateConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if rotate.Enabled {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   out,
			MaxSize:    atLeast(rotate.MaxSizeMB, 10),
			MaxBackups: atLeast(rotate.MaxBackups, 1),
			MaxAge:     atLeast(rotate.MaxAgeDays, 7),
			Compress:   rotate.Compress,
		}), nil
	}
	file, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(file), nil
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// L 返回默认 logger
func L() *zap.Logger {
	if defaultLogger == nil {
		defaultLogger, _ = zap.NewProduction()
	}
	return defaultLogger
}

// Named 返回带组件名的 logger
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Info 输出 info 日志
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn 输出 warn 日志
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error 输出 error 日志
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Fatal 输出日志后退出进程
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

// Sync 刷新日志缓冲
func Sync() error {
	return L().Sync()
}
