// Package log 封装全局的 zap SugaredLogger。
package log

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 未调用 Init 之前（例如单元测试中）使用 no-op logger。
var sugar = zap.NewNop().Sugar()

// Init 按配置构建 logger 并替换全局实例。
// format 为 console 时输出彩色的开发格式，其余情况输出 JSON。
// outputPath 非空时日志同时写入该文件。
func Init(level, format, outputPath string) error {
	cfg, err := buildConfig(level, format, outputPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	sugar = logger.Sugar()
	return nil
}

func buildConfig(level, format, outputPath string) (zap.Config, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		_ = lvl.UnmarshalText([]byte(level)) // 无法识别的级别退回 info
	}
	cfg.Level = lvl

	cfg.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return cfg, err
		}
		cfg.OutputPaths = append(cfg.OutputPaths, outputPath)
	}
	return cfg, nil
}

func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 使用键值对记录结构化日志，流水线各阶段统一使用它。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	sugar.Debugw(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error 记录一条 error 级别的日志，err 作为 "error" 字段输出。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Sync 刷新缓冲区中的日志。
func Sync() {
	_ = sugar.Sync()
}
