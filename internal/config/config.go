// config.go — Daemon configuration.
// Sources, lowest precedence first: built-in defaults, the YAML config file,
// BUGSCRIBE_* environment variables, command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/llm"
	"github.com/EmreDinc10/bugscribe/internal/logging"
	"github.com/EmreDinc10/bugscribe/internal/persistence"
	"github.com/EmreDinc10/bugscribe/internal/scheduler"
	"github.com/EmreDinc10/bugscribe/internal/server"
	"github.com/EmreDinc10/bugscribe/internal/state"
)

// EnvPrefix prefixes every environment override, e.g. BUGSCRIBE_SERVER_PORT.
const EnvPrefix = "BUGSCRIBE"

// LocalConfigFile is looked up in the working directory before the state directory.
const LocalConfigFile = ".bugscribe.yaml"

const redacted = "[redacted]"

// Config is the full daemon configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Capture     CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// ExtensionID restricts accepted extension origins; empty accepts any extension.
	ExtensionID string `mapstructure:"extension_id" yaml:"extension_id"`
}

// LLMConfig configures the chat-completions client.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CaptureConfig configures periodic screenshots.
type CaptureConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// DebuggerURL switches screenshots from the extension relay to DevTools.
	DebuggerURL string `mapstructure:"debugger_url" yaml:"debugger_url"`
}

// PersistenceConfig configures the snapshot store.
type PersistenceConfig struct {
	// Path of the SQLite database; empty uses the state directory.
	Path             string        `mapstructure:"path" yaml:"path"`
	Ephemeral        bool          `mapstructure:"ephemeral" yaml:"ephemeral"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Retention        time.Duration `mapstructure:"retention" yaml:"retention"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// SetDefaults registers every key's default on v. Registering all keys also makes
// them visible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", server.DefaultPort)
	v.SetDefault("server.extension_id", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", llm.DefaultBaseURL)
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.temperature", llm.DefaultTemperature)
	v.SetDefault("llm.timeout", llm.DefaultTimeout)

	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.interval", scheduler.DefaultCaptureInterval)
	v.SetDefault("capture.debugger_url", "")

	v.SetDefault("persistence.path", "")
	v.SetDefault("persistence.ephemeral", false)
	v.SetDefault("persistence.snapshot_interval", persistence.DefaultSnapshotInterval)
	v.SetDefault("persistence.sweep_interval", capture.DefaultSweepInterval)
	v.SetDefault("persistence.retention", persistence.DefaultRetention)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

// NewViper returns a viper instance with defaults, environment binding and the
// config file read. cfgFile, when set, must exist. Otherwise LocalConfigFile and
// then the state directory's config file are tried, and a missing file is fine.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	if cfgFile == "" {
		cfgFile = discoverConfigFile()
		if cfgFile == "" {
			return v, nil
		}
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return v, nil
}

func discoverConfigFile() string {
	if fileExists(LocalConfigFile) {
		return LocalConfigFile
	}
	if p, err := state.ConfigFile(); err == nil && fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f must be within [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.Capture.Interval <= 0 {
		errs = append(errs, errors.New("capture.interval must be positive"))
	}
	if c.Persistence.SnapshotInterval <= 0 {
		errs = append(errs, errors.New("persistence.snapshot_interval must be positive"))
	}
	if c.Persistence.SweepInterval <= 0 {
		errs = append(errs, errors.New("persistence.sweep_interval must be positive"))
	}
	if c.Persistence.Retention <= 0 {
		errs = append(errs, errors.New("persistence.retention must be positive"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// Address is the listen address for the HTTP server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LLMClientConfig converts the llm section for llm.NewOpenAIClient.
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = redacted
	}
	return out
}

// YAML renders the redacted config.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

// Watch reloads the config file on change and hands each valid result to
// onChange. Invalid edits are logged and ignored. No-op without a config file.
func Watch(v *viper.Viper, logger *zap.Logger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}

// ApplyLogLevel returns an onChange hook that moves level to the configured value.
func ApplyLogLevel(level zap.AtomicLevel) func(*Config) {
	return func(cfg *Config) {
		lvl, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return
		}
		if level.Level() != lvl {
			level.SetLevel(lvl)
		}
	}
}
