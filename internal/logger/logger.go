// Package logger wraps a process-wide zap logger with optional file rotation.
package logger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls the level and the rotated log file.
type LogConfig struct {
	Level      string
	Filename   string
	MaxSize    int
	MaxAge     int
	MaxBackups int
}

// Lg is the shared logger. It is usable before Init is called.
var Lg *zap.Logger

// helper backs the package-level functions so callers are reported correctly.
var helper *zap.Logger

func init() {
	initDefaultLogger()
}

func initDefaultLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		logger = zap.NewNop()
	}
	set(logger)
}

func set(l *zap.Logger) {
	Lg = l
	helper = l.WithOptions(zap.AddCallerSkip(1))
	zap.ReplaceGlobals(Lg)
}

// Init replaces Lg with a logger writing JSON to the rotated file. In
// development mode a coloured console copy is teed to stdout/stderr.
func Init(cfg *LogConfig, mode string) error {
	level := new(zapcore.Level)
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return err
	}

	var cores []zapcore.Core
	if cfg.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err != nil {
			return err
		}
		writer := getLogWriter(cfg.Filename, cfg.MaxSize, cfg.MaxBackups, cfg.MaxAge)
		cores = append(cores, zapcore.NewCore(getEncoder(), writer, level))
	}

	if mode == "dev" || mode == "development" || len(cores) == 0 {
		consoleEncoder := zapcore.NewConsoleEncoder(getConsoleEncoderConfig())
		highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= zapcore.ErrorLevel && lvl >= *level
		})
		lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl < zapcore.ErrorLevel && lvl >= *level
		})
		cores = append(cores,
			zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), lowPriority),
			zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), highPriority),
		)
	}

	set(zap.New(zapcore.NewTee(cores...), zap.AddCaller()))

	Info("logger initialized", zap.String("level", level.String()), zap.String("mode", mode))
	return nil
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getConsoleEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + t.Format("2006-01-02 15:04:05.000") + "\x1b[0m")
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return encoderConfig
}

func getLogWriter(filename string, maxSize, maxBackup, maxAge int) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSize,
		MaxBackups: maxBackup,
		MaxAge:     maxAge,
		LocalTime:  true,
	})
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	helper.Info(msg, fields...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) {
	helper.Warn(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	helper.Error(msg, fields...)
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	helper.Debug(msg, fields...)
}

// Named returns a child of Lg for one component.
func Named(name string) *zap.Logger {
	return Lg.Named(name)
}

// Sync flushes buffered entries.
func Sync() {
	if Lg != nil {
		_ = Lg.Sync()
	}
}
