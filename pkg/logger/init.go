package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// build creates the sugared logger. INFO and below go to stdout, WARN and
// above to stderr; both cores share atomicLevel.
func build(jsonFormat bool) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if jsonFormat {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l < zapcore.WarnLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l >= zapcore.WarnLevel
	})
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), low),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), high),
	)
	return zap.New(core).Sugar()
}

// Init configures the global logger from LOG_LEVEL (default INFO) and
// LOG_FORMAT ("console" or "json").
func Init() {
	SetLogLevelFromString(os.Getenv("LOG_LEVEL"))
	// 日志采集环境下使用 JSON 格式
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		_ = sugar.Sync()
		sugar = build(true)
	}
}

// Enabled reports whether messages at level are written.
func Enabled(level LogLevel) bool {
	return GetLogLevel() <= level
}
