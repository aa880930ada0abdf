package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     *zap.SugaredLogger
	loggerOnce sync.Once
	atomLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	production bool
)

// initLogger builds the global logger on first use. Development output is a
// colored console encoder on stderr; production output is JSON.
func initLogger() {
	loggerOnce.Do(func() {
		logger = build(production)
	})
}

func build(prod bool) *zap.SugaredLogger {
	var cfg zap.Config
	if prod {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = atomLevel
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.DPanicLevel))
	if err != nil {
		// Logging must never take the process down.
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// SetProduction switches to the JSON encoder. Call before the first log line.
func SetProduction(prod bool) {
	production = prod
}

func SetLevel(l Level) {
	atomLevel.SetLevel(toZap(l))
}

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
// Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

// Sync flushes buffered entries; call on shutdown.
func Sync() {
	initLogger()
	_ = logger.Sync()
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()
	kv = evenKVs(kv)

	switch level {
	case LevelDebug:
		logger.Debugw(msg, kv...)
	case LevelWarn:
		logger.Warnw(msg, kv...)
	case LevelError:
		logger.Errorw(msg, kv...)
	default:
		logger.Infow(msg, kv...)
	}
}

// evenKVs drops a trailing key without value.
func evenKVs(kv []any) []any {
	if len(kv)%2 == 1 {
		return kv[:len(kv)-1]
	}
	return kv
}

func toZap(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
