// Package config loads the CLI's layered configuration: built-in defaults,
// the user's config.toml (auth token), and QUARRY_* environment variables,
// lowest to highest precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	tomlparser "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// AppDirName is the directory under the platform user-config root that
	// holds config.toml and the cached state file.
	AppDirName = "quarry"

	// ConfigFileName is the TOML file carrying the [auth] section.
	ConfigFileName = "config.toml"

	// StateFileName is the tamper-evident cached project state.
	StateFileName = "state.json"

	envPrefix = "QUARRY_"

	// ProductionAPIBaseURL is selected when QUARRY_ENV=RELEASE; anything
	// else permits the loopback development URL.
	ProductionAPIBaseURL  = "https://api.quarry.dev"
	DevelopmentAPIBaseURL = "http://127.0.0.1:3000"
)

// Config is the resolved configuration the command layer hands to the
// engine. Field tags follow koanf's flat-path convention.
type Config struct {
	Auth AuthConfig `koanf:"auth"`
	Log  string     `koanf:"log"`
	Env  string     `koanf:"env"`
}

// AuthConfig is the [auth] section of config.toml.
type AuthConfig struct {
	Token string `koanf:"token"`
}

// APIBaseURL resolves the upstream platform URL from the environment tag.
func (c *Config) APIBaseURL() string {
	if strings.EqualFold(c.Env, "RELEASE") {
		return ProductionAPIBaseURL
	}
	return DevelopmentAPIBaseURL
}

// Authenticated reports whether an auth token is configured.
func (c *Config) Authenticated() bool {
	return c.Auth.Token != ""
}

// Dir returns the per-user config directory, creating nothing.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving user config directory")
	}
	return filepath.Join(base, AppDirName), nil
}

// StatePath returns the location of the cached state file.
func StatePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, StateFileName), nil
}

// Load reads configuration with precedence defaults → config.toml →
// environment. A missing config file is not an error; a malformed one is.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, ConfigFileName))
}

// LoadFrom loads from an explicit config file path (used by tests).
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"log": "warn",
		"env": "DEVELOPMENT",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "loading defaults")
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if err := k.Load(file.Provider(path), tomlparser.Parser()); err != nil {
			return nil, errors.Wrapf(err, "loading config file %s", path)
		}
	}

	envOpt := env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envTransform,
	}
	if err := k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, errors.Wrap(err, "loading environment")
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	return &cfg, nil
}

// envTransform maps QUARRY_LOG → log, QUARRY_ENV → env, and
// QUARRY_AUTH_TOKEN → auth.token.
func envTransform(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	key = strings.ReplaceAll(key, "_", ".")
	return key, value
}
