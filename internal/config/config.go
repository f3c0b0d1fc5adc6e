package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds the runtime settings for the persist backend.
// Values are resolved in order: flag defaults, YAML config file, PERSIST_*
// environment variables, then explicitly set command-line flags.
type Config struct {
	// Listen is the loopback address the JSON API binds to.
	Listen string `koanf:"listen" validate:"required,hostname_port"`
	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path" validate:"required"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
	// CardDelimiter separates cards in bulk import text.
	CardDelimiter string `koanf:"card_delimiter" validate:"required"`
	// FrontBackDelimiter separates front from back inside one card.
	FrontBackDelimiter string `koanf:"front_back_delimiter" validate:"required,nefield=CardDelimiter"`
	// ReposDir is where git deck sources are cloned.
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// Load resolves the configuration from the optional YAML file at path, the
// environment and the parsed flag set, then validates it.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("PERSIST_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PERSIST_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment config: %w", err)
	}

	// posflag keeps file/env values for flags the user did not set.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flag config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Flags returns the flag set holding the configurable keys and their
// defaults. The caller adds command flags and parses it before Load.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("persist", pflag.ExitOnError)
	f.String("listen", "127.0.0.1:8151", "Loopback address to serve the JSON API on")
	f.String("db_path", "persist.db", "Path to the SQLite database file")
	f.String("log_level", "info", "Log level: debug, info, warn or error")
	f.String("card_delimiter", "--------------", "Default delimiter between cards in bulk import text")
	f.String("front_back_delimiter", "=>", "Default delimiter between front and back of a card")
	f.String("repos_dir", "repos", "Directory git deck sources are cloned into")
	return f
}
