package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Loud event", zap.Int64("Window", 128))
var Logger = zap.NewNop()

// InitLogger 初始化高性能的 Zap 日志
func InitLogger(cfg LogConfig) error {
	// 配置 Zap 日志
	config := zap.NewProductionConfig()

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	if cfg.Encoding != "" {
		config.Encoding = cfg.Encoding
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", cfg.Level)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}
	if len(cfg.OutputPaths) > 0 {
		config.OutputPaths = cfg.OutputPaths
	}

	logger, err := config.Build()
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	Logger = logger
	return nil
}
