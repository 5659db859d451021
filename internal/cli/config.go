package cli

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the debugger's CLI configuration.
type Config struct {
	// Session behavior.
	StopOnEntry      bool `mapstructure:"stop_on_entry"`
	StopOnException  bool `mapstructure:"stop_on_exception"`
	EnableConditions bool `mapstructure:"enable_conditions"`
	EnableWatch      bool `mapstructure:"enable_watch"`
	MaxStackDepth    int  `mapstructure:"max_stack_depth"`

	// EvalTimeout bounds each condition or watch evaluation.
	EvalTimeout time.Duration `mapstructure:"eval_timeout"`

	// Logging. An empty LogFile disables logging entirely.
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Shell settings.
	HistoryFile string `mapstructure:"history_file"`
	NoColor     bool   `mapstructure:"no_color"`
}

// Default returns a Config with default values.
func Default() *Config {
	history := ".scriptdbg_history"
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".scriptdbg_history")
	}
	return &Config{
		EnableConditions: true,
		EnableWatch:      true,
		MaxStackDepth:    100,
		EvalTimeout:      5 * time.Second,
		LogLevel:         "info",
		HistoryFile:      history,
	}
}

// Load loads configuration from files and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".scriptdbg")
	v.SetConfigType("yaml")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "scriptdbg"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCRIPTDBG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := Default()
	v.SetDefault("stop_on_entry", cfg.StopOnEntry)
	v.SetDefault("stop_on_exception", cfg.StopOnException)
	v.SetDefault("enable_conditions", cfg.EnableConditions)
	v.SetDefault("enable_watch", cfg.EnableWatch)
	v.SetDefault("max_stack_depth", cfg.MaxStackDepth)
	v.SetDefault("eval_timeout", cfg.EvalTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("history_file", cfg.HistoryFile)
	v.SetDefault("no_color", cfg.NoColor)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file; defaults and environment apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
