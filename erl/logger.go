package erl

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ILogger interface {
	Println(v ...any)
	Printf(format string, v ...any)
}

// zapLogger adapts a *zap.Logger to [ILogger], logging at info level.
type zapLogger struct {
	z *zap.Logger
}

func (l zapLogger) Println(v ...any) {
	l.z.Info(fmt.Sprintln(v...))
}

func (l zapLogger) Printf(format string, v ...any) {
	l.z.Info(fmt.Sprintf(format, v...))
}

var (
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	loggerMx sync.RWMutex
	zlog     = newZapLogger(logLevel)

	// Logger is used for the unstructured log lines of the runtime. It can be
	// replaced; [SetLogger] replaces both it and the structured logger.
	Logger ILogger = zapLogger{z: zlog}
)

func newZapLogger(level zap.AtomicLevel) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), level)
	return zap.New(core).Named("otp-go")
}

func log() *zap.Logger {
	loggerMx.RLock()
	defer loggerMx.RUnlock()
	return zlog
}

// Log returns the structured logger used by the runtime and its behaviours.
func Log() *zap.Logger {
	return log()
}

// SetLogger replaces the runtime logger. The level set with [SetLogLevel] and
// [SetDebugLog] only applies to the default logger.
func SetLogger(z *zap.Logger) {
	loggerMx.Lock()
	defer loggerMx.Unlock()
	zlog = z
	Logger = zapLogger{z: z}
}

// SetLogLevel sets the level of the default logger.
func SetLogLevel(level zapcore.Level) {
	logLevel.SetLevel(level)
}

func DebugLogEnabled() bool {
	return log().Core().Enabled(zapcore.DebugLevel)
}

// SetDebugLog switches the default logger between debug and info level.
func SetDebugLog(v bool) {
	if v {
		logLevel.SetLevel(zapcore.DebugLevel)
	} else {
		logLevel.SetLevel(zapcore.InfoLevel)
	}
}

func DebugPrintln(v ...any) {
	if DebugLogEnabled() {
		log().Debug(fmt.Sprintln(v...))
	}
}

func DebugPrintf(format string, v ...any) {
	if DebugLogEnabled() {
		log().Debug(fmt.Sprintf(format, v...))
	}
}
