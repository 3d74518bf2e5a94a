// Package config loads the settings of the molsim binaries from defaults, an optional YAML file, an optional
// .env file and MOLSIM_ environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/askiada/molsim/internal/logger"
)

// EnvPrefix prefixes the environment variables overriding the settings: api.url is read from MOLSIM_API_URL.
const EnvPrefix = "MOLSIM"

// Config holds every setting.
type Config struct {
	Log          logger.Config      `mapstructure:"log"`
	API          APIConfig          `mapstructure:"api"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Push         PushConfig         `mapstructure:"push"`
	Server       ServerConfig       `mapstructure:"server"`
	Artifacts    ArtifactsConfig    `mapstructure:"artifacts"`
	Session      SessionConfig      `mapstructure:"session"`
	Redis        RedisConfig        `mapstructure:"redis"`
}

// APIConfig locates the session store and the compute service.
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OrchestratorConfig tunes the client side run orchestration.
type OrchestratorConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
}

// PushConfig locates the push channel. When disabled, runs are followed by polling.
type PushConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// ServerConfig holds the listen settings of molsimd.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ArtifactsConfig locates the artifact store of molsimd.
type ArtifactsConfig struct {
	Root      string `mapstructure:"root"`
	Extension string `mapstructure:"extension"`
}

// SessionConfig selects the session backend of molsimd: memory or redis.
type SessionConfig struct {
	Backend string `mapstructure:"backend"`
}

// RedisConfig holds the Redis session backend settings.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

var defaults = map[string]interface{}{
	"log.level":                      "info",
	"log.format":                     "json",
	"log.time_format":                "rfc3339",
	"api.url":                        "http://localhost:8080",
	"api.timeout":                    30 * time.Second,
	"orchestrator.poll_interval":     5 * time.Second,
	"orchestrator.fetch_concurrency": 4,
	"push.url":                       "ws://localhost:8080/session/ws",
	"push.enabled":                   true,
	"server.addr":                    ":8080",
	"server.shutdown_timeout":        10 * time.Second,
	"artifacts.root":                 "data/artifacts",
	"artifacts.extension":            ".pdb",
	"session.backend":                "memory",
	"redis.url":                      "redis://localhost:6379/0",
	"redis.ttl":                      24 * time.Hour,
}

// Keys returns the setting names.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}

	return keys
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Options locate the optional files read by Load.
type Options struct {
	// Fs is the filesystem holding the files. Nil means the OS filesystem.
	Fs afero.Fs
	// File is a YAML config file. Empty means none.
	File string
	// EnvFile is a dotenv file. It is skipped when it does not exist.
	EnvFile string
}

// Load reads the settings.
func Load(opts Options) (Config, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	v := viper.New()
	v.SetFs(fs)
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "unable to read config file %s", opts.File)
		}
	}

	if opts.EnvFile != "" {
		if err := applyEnvFile(v, fs, opts.EnvFile); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "unable to decode config")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// applyEnvFile sets the keys found in the dotenv file at path unless the process environment already does.
func applyEnvFile(v *viper.Viper, fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrapf(err, "unable to read %s", path)
	}

	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "unable to parse %s", path)
	}

	for _, key := range Keys() {
		name := EnvName(key)
		val, ok := env[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(key, val)
	}

	return nil
}

// Validate checks the settings that have a closed set of values.
func (c Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return errors.Errorf("invalid session.backend %q: must be memory or redis", c.Session.Backend)
	}

	if c.Orchestrator.FetchConcurrency <= 0 {
		return errors.Errorf("invalid orchestrator.fetch_concurrency %d: must be positive", c.Orchestrator.FetchConcurrency)
	}

	if c.Orchestrator.PollInterval <= 0 {
		return errors.Errorf("invalid orchestrator.poll_interval %s: must be positive", c.Orchestrator.PollInterval)
	}

	return nil
}
