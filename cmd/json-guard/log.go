package main

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger logs to w in console format. Only warnings and errors are shown
// unless verbose is set.
func newLogger(w io.Writer, verbose bool) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zap.WarnLevel
	if verbose {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core, zap.AddStacktrace(zap.ErrorLevel)).Sugar()
}

func syncLogger(log *zap.SugaredLogger) {
	_ = log.Sync()
}
