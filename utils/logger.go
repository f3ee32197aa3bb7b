package utils

import (
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger initializes the global logger instance. logFile adds a file
// sink next to stdout, with errors mirrored to a derived "-error" file;
// empty keeps the standard streams only.
func InitLogger(debug bool, logFile string) *zap.Logger {
	once.Do(func() {
		config := zap.NewProductionConfig()
		if debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		if logFile != "" {
			config.OutputPaths = append(config.OutputPaths, logFile)
			config.ErrorOutputPaths = append(config.ErrorOutputPaths, ErrorLogPath(logFile))
		}

		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"

		logger, err := config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger
	})

	return log
}

// ErrorLogPath derives the error sink path next to the main log file.
func ErrorLogPath(logFile string) string {
	ext := filepath.Ext(logFile)
	return strings.TrimSuffix(logFile, ext) + "-error" + ext
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false, "")
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
