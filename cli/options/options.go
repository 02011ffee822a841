/*
Package options contains a set of common CLI options and helper functions to use them.
*/
package options

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lrmpt/lrmpt/pkg/config"
	"github.com/lrmpt/lrmpt/pkg/io"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeout is the default timeout used for a single write.
const DefaultTimeout = 10 * time.Second

// Config is a set of flags used for config file selection.
var Config = []cli.Flag{
	cli.StringFlag{
		Name:  "config-file",
		Usage: "path to the config file (" + config.DefaultConfigPath + " is used if present)",
	},
	cli.BoolFlag{
		Name:  "debug, d",
		Usage: "enable debug logging (LOTS of output, overrides configuration)",
	},
}

// Timeout is a flag limiting the time of the whole command.
var Timeout = cli.DurationFlag{
	Name:  "timeout, s",
	Value: DefaultTimeout,
	Usage: "Timeout for the operation",
}

// GetTimeoutContext returns a context.Context with the default or a user-set timeout.
func GetTimeoutContext(ctx *cli.Context) (context.Context, func()) {
	dur := ctx.Duration("timeout")
	if dur == 0 {
		dur = DefaultTimeout
	}
	return context.WithTimeout(context.Background(), dur)
}

// GetConfigFromContext loads the config file given in the context. If no
// file is given, the default one is used when present, otherwise default
// settings are returned.
func GetConfigFromContext(ctx *cli.Context) (config.Config, error) {
	configFile := ctx.String("config-file")
	if len(configFile) != 0 {
		return config.LoadFile(configFile)
	}
	if _, err := os.Stat(config.DefaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.LoadFile(config.DefaultConfigPath)
}

// HandleLoggingParams reads logging parameters.
// If a user selected debug level -- function enables it.
// If logPath is configured -- function creates a dir and a file for logging.
func HandleLoggingParams(debug bool, cfg config.Logger) (*zap.Logger, *zap.AtomicLevel, error) {
	var (
		level = zapcore.InfoLevel
		err   error
	)
	if len(cfg.LogLevel) > 0 {
		level, err = zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("log setting: %w", err)
		}
	}
	if debug {
		level = zapcore.DebugLevel
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.LogTimestamp != nil && !*cfg.LogTimestamp {
		cc.EncoderConfig.TimeKey = ""
	}
	cc.Encoding = "console"
	if cfg.LogEncoding != "" {
		cc.Encoding = cfg.LogEncoding
	}
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil
	cc.OutputPaths = []string{"stderr"}

	if logPath := cfg.LogPath; logPath != "" {
		if err := io.MakeDirForFile(logPath, "logger"); err != nil {
			return nil, nil, err
		}
		cc.OutputPaths = []string{logPath}
	}

	log, err := cc.Build()
	return log, &cc.Level, err
}
