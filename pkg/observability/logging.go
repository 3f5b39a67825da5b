package observability

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "marketplace"

// InitLogger builds the process logger. format is "json" (default) or "console".
func InitLogger(level, format string) *zap.SugaredLogger {
	logger, err := NewConfig(level, format).Build()
	if err != nil {
		log.Fatal(err)
	}
	return logger.Sugar()
}

func NewConfig(level, format string) zap.Config {
	logConfig := zap.NewProductionConfig()
	logConfig.Sampling = nil
	logConfig.DisableStacktrace = true
	logConfig.Level = zap.NewAtomicLevelAt(DetermineLogLevel(level))
	logConfig.InitialFields = map[string]any{"service": serviceName}

	if format == "console" {
		logConfig.Encoding = "console"
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	return logConfig
}

// DetermineLogLevel falls back to info for empty or unknown names.
func DetermineLogLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || level == "" {
		return zap.InfoLevel
	}
	return lvl
}
