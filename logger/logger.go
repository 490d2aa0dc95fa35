// Package logger builds the process-wide zap logger: colored console output in
// development, JSON files rotated by lumberjack otherwise.
package logger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Option struct {
	Level       zapcore.Level
	Development bool
	LogDir      string
	FileName    string
	MaxSize     int // megabytes
	MaxBackups  int
	MaxAge      int // days
	// Console, when set, receives error logs in production mode. Defaults to stderr.
	Console zapcore.WriteSyncer
}

type ModOptions func(option *Option)

func WithLevel(level zapcore.Level) ModOptions {
	return func(o *Option) { o.Level = level }
}

// WithLevelName parses level ("debug", "info", ...). Unknown names leave the level unchanged.
func WithLevelName(level string) ModOptions {
	return func(o *Option) {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err == nil {
			o.Level = l
		}
	}
}

func WithDevelopment(development bool) ModOptions {
	return func(o *Option) { o.Development = development }
}

func WithLogDir(dir string) ModOptions {
	return func(o *Option) { o.LogDir = dir }
}

func WithFileName(name string) ModOptions {
	return func(o *Option) { o.FileName = name }
}

func WithRotation(maxSize, maxBackups, maxAge int) ModOptions {
	return func(o *Option) {
		o.MaxSize = maxSize
		o.MaxBackups = maxBackups
		o.MaxAge = maxAge
	}
}

func WithConsole(ws zapcore.WriteSyncer) ModOptions {
	return func(o *Option) { o.Console = ws }
}

func (o *Option) fixup() {
	if o.LogDir == "" {
		o.LogDir = "logs"
	}
	if o.FileName == "" {
		o.FileName = "rtmpd"
	}
	if o.MaxSize == 0 {
		o.MaxSize = 100
	}
	if o.MaxBackups == 0 {
		o.MaxBackups = 10
	}
	if o.MaxAge == 0 {
		o.MaxAge = 30
	}
	if o.Console == nil {
		o.Console = zapcore.Lock(os.Stderr)
	}
}

// New builds a logger from opts.
func New(opts ...ModOptions) (*zap.Logger, error) {
	opt := &Option{Level: zapcore.InfoLevel}
	for _, item := range opts {
		item(opt)
	}
	opt.fixup()

	level := zap.NewAtomicLevelAt(opt.Level)
	var core zapcore.Core
	if opt.Development {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = timeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), level)
	} else {
		if err := os.MkdirAll(opt.LogDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "logger: creating %s", opt.LogDir)
		}
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = timeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		errPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= zapcore.ErrorLevel && level.Enabled(lvl)
		})
		core = zapcore.NewTee(
			zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(opt.rotatingFile()), level),
			zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), opt.Console, errPriority),
		)
	}
	return zap.New(core, zap.AddCaller()), nil
}

func (o *Option) rotatingFile() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(o.LogDir, o.FileName+".log"),
		MaxSize:    o.MaxSize,
		MaxAge:     o.MaxAge,
		MaxBackups: o.MaxBackups,
		LocalTime:  true,
		Compress:   false,
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}
