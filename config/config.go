package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hupe1980/coagent/logging"
)

// EnvPrefix prefixes environment overrides, e.g. COAGENT_MODEL_NAME.
const EnvPrefix = "COAGENT"

// ErrInvalid is wrapped by validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" json:"log" yaml:"log"`
	Model    ModelConfig    `mapstructure:"model" json:"model" yaml:"model"`
	Agent    AgentConfig    `mapstructure:"agent" json:"agent" yaml:"agent"`
	Executor ExecutorConfig `mapstructure:"executor" json:"executor" yaml:"executor"`

	src *source
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"` // json | text
}

// ModelConfig selects the model provider.
type ModelConfig struct {
	Provider    string        `mapstructure:"provider" json:"provider" yaml:"provider"` // openai | anthropic | mock
	Name        string        `mapstructure:"name" json:"name" yaml:"name"`
	APIKey      string        `mapstructure:"api_key" json:"-" yaml:"-"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature float64       `mapstructure:"temperature" json:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// AgentConfig tunes actor agents.
type AgentConfig struct {
	MaxIterations        int           `mapstructure:"max_iterations" json:"max_iterations" yaml:"max_iterations"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" json:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	RunInterval          time.Duration `mapstructure:"run_interval" json:"run_interval" yaml:"run_interval"`
	HumanFeedback        bool          `mapstructure:"human_feedback" json:"human_feedback" yaml:"human_feedback"`
	QueueSize            int           `mapstructure:"queue_size" json:"queue_size" yaml:"queue_size"`
}

// ExecutorConfig tunes the background executor.
type ExecutorConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent"`
}

var defaults = map[string]any{
	"log.level":                    "info",
	"log.format":                   "text",
	"model.provider":               "openai",
	"model.name":                   "",
	"model.api_key":                "",
	"model.base_url":               "",
	"model.temperature":            0.7,
	"model.max_tokens":             1024,
	"model.timeout":                "30s",
	"agent.max_iterations":         10,
	"agent.max_consecutive_errors": 3,
	"agent.run_interval":           "100ms",
	"agent.human_feedback":         false,
	"agent.queue_size":             64,
	"executor.max_concurrent":      0,
}

// LoadOptions control where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an optional yaml, json or toml file.
	ConfigFile string
	// EnvFiles are loaded into the process environment first. Missing files
	// are ignored.
	EnvFiles []string
	// Overrides take precedence over every other source.
	Overrides map[string]any
	Logger    logging.Logger
}

type source struct {
	v      *viper.Viper
	logger logging.Logger

	mu        sync.RWMutex
	watchers  []func(old, new Config)
	watchOnce sync.Once
	current   Config
}

// Load builds a Config from, in increasing precedence: defaults, the config
// file, environment variables and overrides.
func Load(optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{
		EnvFiles: []string{".env"},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
		logger.Debug("config.file.loaded", "path", v.ConfigFileUsed())
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// current never carries src so reloads compare by value.
	cfg.src = &source{v: v, logger: logger, current: cfg}
	return &cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "openai":
			cfg.Model.APIKey = v.GetString("openai_api_key")
		case "anthropic":
			cfg.Model.APIKey = v.GetString("anthropic_api_key")
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "openai"
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 1024
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = 30 * time.Second
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.MaxConsecutiveErrors == 0 {
		c.Agent.MaxConsecutiveErrors = 3
	}
	if c.Agent.RunInterval == 0 {
		c.Agent.RunInterval = 100 * time.Millisecond
	}
	if c.Agent.QueueSize == 0 {
		c.Agent.QueueSize = 64
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log.format %q (want json or text)", ErrInvalid, c.Log.Format)
	}
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("%w: model.provider %q (want openai, anthropic or mock)", ErrInvalid, c.Model.Provider)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("%w: model.temperature %v out of range [0,2]", ErrInvalid, c.Model.Temperature)
	}
	if c.Model.MaxTokens < 0 || c.Agent.MaxIterations < 0 || c.Agent.QueueSize < 0 || c.Executor.MaxConcurrent < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalid)
	}
	return nil
}

// Get returns the raw value stored under a dotted key such as
// "model.name", or def when the key is unset.
func (c *Config) Get(key string, def any) any {
	if c.src == nil {
		return def
	}
	c.src.mu.RLock()
	defer c.src.mu.RUnlock()
	if !c.src.v.IsSet(key) {
		return def
	}
	return c.src.v.Get(key)
}

// Has reports whether key is set by any source, defaults included.
func (c *Config) Has(key string) bool {
	if c.src == nil {
		return false
	}
	c.src.mu.RLock()
	defer c.src.mu.RUnlock()
	return c.src.v.IsSet(key)
}

// Watch calls fn with the previous and the reloaded configuration whenever
// the config file changes. Bursts of file events are debounced; reloads that
// fail to decode or change nothing are skipped. The receiver keeps its
// values.
func (c *Config) Watch(fn func(old, new Config)) error {
	if c.src == nil || c.src.v.ConfigFileUsed() == "" {
		return errors.New("watch requires a config file")
	}

	c.src.mu.Lock()
	c.src.watchers = append(c.src.watchers, fn)
	c.src.mu.Unlock()

	c.src.watchOnce.Do(c.src.watch)
	return nil
}

const debounce = 100 * time.Millisecond

func (s *source) watch() {
	var (
		timer *time.Timer
		tmu   sync.Mutex
	)

	s.v.OnConfigChange(func(_ fsnotify.Event) {
		tmu.Lock()
		defer tmu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, s.reload)
	})
	s.v.WatchConfig()
}

func (s *source) reload() {
	s.mu.Lock()
	old := s.current
	if err := s.v.ReadInConfig(); err != nil {
		s.mu.Unlock()
		s.logger.Warn("config.reload.failed", "error", err.Error())
		return
	}
	next, err := decode(s.v)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("config.reload.failed", "error", err.Error())
		return
	}
	s.current = next
	watchers := append(([]func(old, new Config))(nil), s.watchers...)
	s.mu.Unlock()

	if reflect.DeepEqual(old, next) {
		return
	}
	old.src, next.src = s, s
	s.logger.Info("config.reloaded", "path", s.v.ConfigFileUsed())

	for _, cb := range watchers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("config.watcher.panic", "panic", fmt.Sprint(r))
				}
			}()
			cb(old, next)
		}()
	}
}

// NewLogger builds a structured logger from the log section.
func (c *Config) NewLogger(w io.Writer) *logging.StructuredLogger {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = level
	cfg.Format = c.Log.Format
	cfg.Output = w
	return logging.NewLogger(cfg)
}
