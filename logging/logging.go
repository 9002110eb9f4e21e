// Package logging provides a leveled, file-rotating logger built on
// zap, replacing the teacher's bespoke io.Writer-to-file Logger while
// keeping its "rotate latest.txt to last.txt on startup" habit.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger that writes to both stdout and a rotated
// log/latest.txt, at the given minimum level. dir defaults to "log"
// when empty. The returned AtomicLevel lets an operator raise or
// lower verbosity at runtime (the config surface's "verbosity-rule
// set") without rebuilding the logger.
func New(dir string, level zapcore.Level) (*zap.Logger, zap.AtomicLevel, error) {
	if dir == "" {
		dir = "log"
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	latest := filepath.Join(dir, "latest.txt")
	last := filepath.Join(dir, "last.txt")
	os.Rename(latest, last)

	file, err := os.OpenFile(latest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		atomicLevel,
	)
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(file),
		atomicLevel,
	)

	core := zapcore.NewTee(consoleCore, fileCore)
	return zap.New(core), atomicLevel, nil
}
