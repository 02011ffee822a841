package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default path to the config file.
const DefaultConfigPath = "./config/lrmpt.yml"

// Version is the version of the tool, set at build time.
var Version string

// Config top level struct representing the config for the tool.
type Config struct {
	ApplicationConfiguration ApplicationConfiguration `yaml:"ApplicationConfiguration"`
	Trie                     Trie                     `yaml:"Trie"`
}

// Default returns the configuration used when a setting is omitted.
func Default() Config {
	return Config{
		ApplicationConfiguration: ApplicationConfiguration{
			Logger: Logger{
				LogLevel:    "info",
				LogEncoding: "console",
			},
		},
		Trie: Trie{
			Hash:          DefaultHash,
			NodeCacheSize: DefaultNodeCacheSize,
			WritePolicy:   DefaultWritePolicy,
		},
	}
}

// LoadFile loads config from the provided path.
func LoadFile(configPath string) (Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config '%s' doesn't exist", configPath)
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	return Unmarshal(configData)
}

// Unmarshal decodes config from YAML data on top of Default values and
// validates the result. Unknown fields are rejected.
func Unmarshal(data []byte) (Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(&config)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("config is invalid: %w", err)
	}
	return config, nil
}

// Validate checks Config for correctness.
func (c Config) Validate() error {
	if err := c.ApplicationConfiguration.Validate(); err != nil {
		return err
	}
	return c.Trie.Validate()
}
