// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel maps a level name to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level Level
	sugar *zap.SugaredLogger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format,
// writing to stderr.
func Init(level string, format string) {
	defaultLogger = New(os.Stderr, level, format)
}

// New builds a Logger writing JSON ("json") or console ("text") entries to w.
func New(w io.Writer, level string, format string) *Logger {
	l := ParseLevel(level)

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "text" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(l.zapLevel()))

	return &Logger{level: l, sugar: zap.New(core).Sugar()}
}

// SetDefault replaces the package-level logger. A nil logger silences output.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Sync flushes buffered entries of the default logger.
func Sync() {
	if defaultLogger != nil {
		_ = defaultLogger.sugar.Sync()
	}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil || l.level > level {
		return
	}
	switch level {
	case DebugLevel:
		l.sugar.Debugf(format, args...)
	case InfoLevel:
		l.sugar.Infof(format, args...)
	case WarnLevel:
		l.sugar.Warnf(format, args...)
	default:
		l.sugar.Errorf(format, args...)
	}
}

func Debug(format string, args ...interface{}) {
	defaultLogger.log(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.log(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.log(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.log(ErrorLevel, format, args...)
}

// Fatal logs at error level and exits.
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.sugar.Fatalf(format, args...)
	}
	fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	os.Exit(1)
}
