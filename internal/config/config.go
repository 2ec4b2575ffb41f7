// Package config loads ~/.ppmi/config.toml and PPMI_* environment overrides
// into a typed Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/livingpark/ppmi-downloader/internal/portal"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".ppmi"
	envPrefix  = "PPMI"
)

const (
	KeyGridEndpoint       = "grid.endpoint"
	KeyGridEndpoints      = "grid.endpoints"
	KeyGridParallelism    = "grid.parallelism"
	KeyGridHealthAttempts = "grid.health_attempts"
	KeyGridHealthInterval = "grid.health_interval"
	KeyLoginAttempts      = "session.login_attempts"
	KeyActionTimeout      = "action.timeout"
	KeyActionInterval     = "action.interval"
	KeyPollMaxWait        = "poll.max_wait"
	KeyPollInterval       = "poll.interval"
	KeyPollMaxInterval    = "poll.max_interval"
	KeyPollBackoff        = "poll.backoff"
	KeyDownloadDir        = "download.dir"
	KeyDownloadExtract    = "download.extract"
	KeyDownloadAttempts   = "download.attempts"
	KeyCatalogPath        = "catalog.path"
	KeySecretsDir         = "secrets.dir"
	KeySecretsBackend     = "secrets.backend"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	keyPortal             = "portal"
)

const (
	SecretsAuto = "auto"
	SecretsEnv  = "env"
	SecretsPass = "pass"
	SecretsFile = "file"
)

type Grid struct {
	Endpoint       string
	Endpoints      []string
	Parallelism    int
	HealthAttempts uint
	HealthInterval time.Duration
}

// Addresses returns the configured worker pool, falling back to Endpoint.
func (g Grid) Addresses() []string {
	addresses := make([]string, 0, len(g.Endpoints)+1)
	for _, endpoint := range g.Endpoints {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			addresses = append(addresses, endpoint)
		}
	}
	if len(addresses) == 0 && g.Endpoint != "" {
		addresses = append(addresses, g.Endpoint)
	}
	return addresses
}

type Poll struct {
	MaxWait     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration
	Backoff     bool
}

type Config struct {
	Grid            Grid
	LoginAttempts   uint
	ActionTimeout   time.Duration
	ActionInterval  time.Duration
	Poll            Poll
	DownloadDir     string
	Extract         bool
	DownloadRetries uint
	CatalogPath     string
	SecretsDir      string
	SecretsBackend  string
	LogLevel        string
	LogFormat       string
	Site            portal.Site
	// File is the config file that was read, empty when none exists.
	File string
}

// New prepares v with the ppmi defaults, search path and env binding.
func New(v *viper.Viper) (*viper.Viper, error) {
	if v == nil {
		v = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	base := filepath.Join(homeDir, configDir)

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(base)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyGridEndpoint, "127.0.0.1:9222")
	v.SetDefault(KeyGridEndpoints, []string{})
	v.SetDefault(KeyGridParallelism, 1)
	v.SetDefault(KeyGridHealthAttempts, 5)
	v.SetDefault(KeyGridHealthInterval, 2*time.Second)
	v.SetDefault(KeyLoginAttempts, 3)
	v.SetDefault(KeyActionTimeout, 30*time.Second)
	v.SetDefault(KeyActionInterval, time.Second)
	v.SetDefault(KeyPollMaxWait, 2*time.Hour)
	v.SetDefault(KeyPollInterval, 30*time.Second)
	v.SetDefault(KeyPollMaxInterval, 5*time.Minute)
	v.SetDefault(KeyPollBackoff, true)
	v.SetDefault(KeyDownloadDir, ".")
	v.SetDefault(KeyDownloadExtract, true)
	v.SetDefault(KeyDownloadAttempts, 3)
	v.SetDefault(KeyCatalogPath, filepath.Join(base, "catalog.toml"))
	v.SetDefault(KeySecretsDir, filepath.Join(base, "secrets"))
	v.SetDefault(KeySecretsBackend, SecretsAuto)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "auto")

	return v, nil
}

// Load reads the config file when present and decodes everything into Config.
func Load(v *viper.Viper) (Config, error) {
	v, err := New(v)
	if err != nil {
		return Config{}, err
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	site := portal.Default()
	if v.IsSet(keyPortal) {
		if err := v.UnmarshalKey(keyPortal, &site, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		))); err != nil {
			return Config{}, fmt.Errorf("decode portal overrides: %w", err)
		}
	}

	cfg := Config{
		Grid: Grid{
			Endpoint:       v.GetString(KeyGridEndpoint),
			Endpoints:      v.GetStringSlice(KeyGridEndpoints),
			Parallelism:    v.GetInt(KeyGridParallelism),
			HealthAttempts: v.GetUint(KeyGridHealthAttempts),
			HealthInterval: v.GetDuration(KeyGridHealthInterval),
		},
		LoginAttempts:  v.GetUint(KeyLoginAttempts),
		ActionTimeout:  v.GetDuration(KeyActionTimeout),
		ActionInterval: v.GetDuration(KeyActionInterval),
		Poll: Poll{
			MaxWait:     v.GetDuration(KeyPollMaxWait),
			Interval:    v.GetDuration(KeyPollInterval),
			MaxInterval: v.GetDuration(KeyPollMaxInterval),
			Backoff:     v.GetBool(KeyPollBackoff),
		},
		DownloadDir:     v.GetString(KeyDownloadDir),
		Extract:         v.GetBool(KeyDownloadExtract),
		DownloadRetries: v.GetUint(KeyDownloadAttempts),
		CatalogPath:     v.GetString(KeyCatalogPath),
		SecretsDir:      v.GetString(KeySecretsDir),
		SecretsBackend:  strings.ToLower(v.GetString(KeySecretsBackend)),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		Site:            site,
		File:            v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if len(c.Grid.Addresses()) == 0 {
		errs = append(errs, errors.New("grid endpoint is empty"))
	}
	if c.Grid.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("grid parallelism must be >= 1, got %d", c.Grid.Parallelism))
	}
	if c.LoginAttempts == 0 {
		errs = append(errs, errors.New("session login attempts must be >= 1"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Poll.MaxWait <= 0 {
		errs = append(errs, errors.New("poll max wait must be positive"))
	}
	switch c.SecretsBackend {
	case SecretsAuto, SecretsEnv, SecretsPass, SecretsFile:
	default:
		errs = append(errs, fmt.Errorf("unsupported secrets backend %q", c.SecretsBackend))
	}
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("download dir is empty"))
	}
	return errors.Join(errs...)
}
