package config

import (
	"fmt"

	"github.com/lrmpt/lrmpt/pkg/core/storage/dbconfig"
	"go.uber.org/zap/zapcore"
)

// ApplicationConfiguration config specific to the tool.
type ApplicationConfiguration struct {
	Logger `yaml:",inline"`

	DBConfiguration dbconfig.DBConfiguration `yaml:"DBConfiguration"`
	Pprof           BasicService             `yaml:"Pprof"`
	Prometheus      BasicService             `yaml:"Prometheus"`
}

// Logger contains node logger configuration.
type Logger struct {
	LogEncoding  string `yaml:"LogEncoding"`
	LogLevel     string `yaml:"LogLevel"`
	LogPath      string `yaml:"LogPath"`
	LogTimestamp *bool  `yaml:"LogTimestamp,omitempty"`
}

// Validate checks ApplicationConfiguration for internal consistency and
// returns an error if any invalid settings are found.
func (a *ApplicationConfiguration) Validate() error {
	if err := a.Logger.Validate(); err != nil {
		return err
	}
	switch a.DBConfiguration.Type {
	case "", dbconfig.InMemoryDB, dbconfig.LevelDB, dbconfig.BoltDB:
	case dbconfig.S3DB:
		if a.DBConfiguration.S3Options.Bucket == "" {
			return fmt.Errorf("S3 bucket is not set for %s DB", dbconfig.S3DB)
		}
	default:
		return fmt.Errorf("unknown DB type: %s", a.DBConfiguration.Type)
	}
	for name, s := range map[string]BasicService{"Pprof": a.Pprof, "Prometheus": a.Prometheus} {
		if s.Enabled && len(s.Addresses) == 0 {
			return fmt.Errorf("%s service is enabled, but no addresses are given", name)
		}
	}
	return nil
}

// Validate returns an error if Logger configuration is not valid.
func (l Logger) Validate() error {
	if len(l.LogEncoding) > 0 && l.LogEncoding != "json" && l.LogEncoding != "console" {
		return fmt.Errorf("invalid logger encoding: %s", l.LogEncoding)
	}
	if len(l.LogLevel) > 0 {
		if _, err := zapcore.ParseLevel(l.LogLevel); err != nil {
			return fmt.Errorf("log setting: %w", err)
		}
	}
	return nil
}
