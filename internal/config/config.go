// Package config provides configuration management for glance using Viper
// for loading from files, environment variables, and command-line flags.
//
// Values are resolved from, in increasing priority: built-in defaults, the
// YAML file (.glance.yml), GLANCE_ prefixed environment variables and
// command-line flags bound by the cmd package. Load validates the result.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/watcher"
)

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch"`
	Render RenderConfig `mapstructure:"render" yaml:"render"`
	Page   PageConfig   `mapstructure:"page" yaml:"page"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	// TargetFile is the document named on the command line.
	TargetFile string `mapstructure:"-" yaml:"-"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Root           string        `mapstructure:"root" yaml:"root"`
	Open           bool          `mapstructure:"open" yaml:"open"`
	Heartbeat      time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
	StreamRate     float64       `mapstructure:"stream_rate" yaml:"stream_rate"`
	StreamBurst    int           `mapstructure:"stream_burst" yaml:"stream_burst"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type WatchConfig struct {
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ReadAttempts int           `mapstructure:"read_attempts" yaml:"read_attempts"`
	ReadBackoff  time.Duration `mapstructure:"read_backoff" yaml:"read_backoff"`
	Ignore       []string      `mapstructure:"ignore" yaml:"ignore"`
}

type RenderConfig struct {
	Dangerous bool `mapstructure:"dangerous" yaml:"dangerous"`
	Emoji     bool `mapstructure:"emoji" yaml:"emoji"`
}

type PageConfig struct {
	Stylesheet string `mapstructure:"stylesheet" yaml:"stylesheet"`
	Dark       bool   `mapstructure:"dark" yaml:"dark"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Address returns host:port for listening.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EnvPrefix is the prefix of every environment variable glance reads.
const EnvPrefix = "GLANCE"

// BindEnvironment makes viper resolve keys such as server.port from
// GLANCE_SERVER_PORT.
func BindEnvironment() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// SetDefaults registers the default value of every key with viper.
func SetDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.root", ".")
	viper.SetDefault("server.open", false)
	viper.SetDefault("server.heartbeat", time.Second)
	viper.SetDefault("server.stream_rate", 10.0)
	viper.SetDefault("server.stream_burst", 20)
	viper.SetDefault("server.allowed_origins", []string{})

	viper.SetDefault("watch.backend", string(watcher.BackendNotify))
	viper.SetDefault("watch.poll_interval", watcher.DefaultPollInterval)
	viper.SetDefault("watch.read_attempts", 3)
	viper.SetDefault("watch.read_backoff", 300*time.Millisecond)
	viper.SetDefault("watch.ignore", watcher.DefaultIgnore)

	viper.SetDefault("render.dangerous", false)
	viper.SetDefault("render.emoji", true)

	viper.SetDefault("page.stylesheet", "")
	viper.SetDefault("page.dark", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// Resolve decodes the configuration from viper without validating it.
func Resolve() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, "failed to decode configuration")
	}

	if config.Server.Root == "" {
		config.Server.Root = "."
	}
	if config.Watch.Backend == "" {
		config.Watch.Backend = string(watcher.BackendNotify)
	}

	return &config, nil
}

// Load resolves the configuration from viper and validates it.
func Load() (*Config, error) {
	config, err := Resolve()
	if err != nil {
		return nil, err
	}

	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		first := result.Errors[0]
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, first.Error()).
			WithContext("errors", len(result.Errors))
	}

	return config, nil
}
