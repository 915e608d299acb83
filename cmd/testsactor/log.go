package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Subaru-PFS/ics-testsActor/config"
)

// newLogger logs to stderr in console format and, when f.Path is set, to a
// rotated JSON file as well
func newLogger(level string, f config.LogFile) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr), lvl)
	if f.Path == "" {
		return zap.New(console, zap.AddCaller()), nil
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAgeDays,
		Compress:   true})
	file := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, lvl)
	return zap.New(zapcore.NewTee(console, file), zap.AddCaller()), nil
}
