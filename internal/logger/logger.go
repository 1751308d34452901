// internal/logger/logger.go
//
// Structured JSON logger (Zap + Lumberjack).
//
// Context
// -------
// The hub writes lifecycle and error events to one JSON log per day under
// `<project>/logs/YYYY-MM-DD.log`.  When stderr is an interactive TTY we
// tee the same events, in console form, to stderr.  stdout stays reserved
// for command output (`hub config show` prints JSON there).  Rotation,
// compression, and retention are handled by Lumberjack.
//
// Usage
// -----
//
//	log, err := logger.New(project.LogDir(), zap.InfoLevel, logger.IsTTY(os.Stderr))
//	if err != nil { … }
//	log.Infow("stack built", "stack", "traefik")
//
// Notes
// -----
// • Zap core uses ISO-8601 timestamps and lowercase levels.
// • Errors are written to the same sink via `ErrorOutput`.
// • Oxford commas, two spaces after periods.
package logger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }

// ParseLevel maps "debug", "info", "warn", or "error" to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	return zapcore.ParseLevel(s)
}

// New returns a *zap.SugaredLogger that writes JSON to
// <logDir>/YYYY-MM-DD.log.  When tee == true, a console core on stderr is
// also attached.  The logger is installed as the process-wide default via
// zap.ReplaceGlobals.
func New(logDir string, level zapcore.Level, tee bool) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	fileName := time.Now().Format("2006-01-02") + ".log"
	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, fileName),
		MaxSize:    10, // MB
		MaxBackups: 7,  // keep last seven files
		MaxAge:     30, // days
		Compress:   true,
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(fileSink), level),
	}

	if tee {
		// Console shows warnings and up unless debugging.
		consoleLevel := max(level, zapcore.WarnLevel)
		if level == zapcore.DebugLevel {
			consoleLevel = zapcore.DebugLevel
		}
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.LowercaseColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stderr),
			consoleLevel,
		))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.ErrorOutput(zapcore.AddSync(fileSink)),
		zap.AddCaller(),
	).Sugar()

	zap.ReplaceGlobals(z.Desugar())

	z.Debugw("logger online", "dir", logDir, "level", level.String(), "tee", tee)
	return z, nil
}
