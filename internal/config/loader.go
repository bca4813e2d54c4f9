package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "MATT",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "MATT",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (MATT_*)
// 3. Project config (.matt/config.yaml in current directory)
// 4. User config (~/.config/matt/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config.
		l.v.AddConfigPath(".matt")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "matt"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Server defaults
	l.v.SetDefault("server.host", "127.0.0.1")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.request_timeout", "5m")
	l.v.SetDefault("server.cors_origins", []string{"*"})

	// Store defaults
	l.v.SetDefault("store.path", ".matt/matt.db")

	// Dispatch defaults
	l.v.SetDefault("dispatch.max_concurrent", 4)
	l.v.SetDefault("dispatch.invocation_timeout", "2m")

	// Workflow defaults
	l.v.SetDefault("workflow.test_categories", []string{"unit", "integration", "e2e", "security", "performance"})
	l.v.SetDefault("workflow.estimate_per_category", 5)

	// Agent defaults: one agent per role served by the configured
	// command; the environment role falls back to the local prober.
	l.v.SetDefault("agents.replicas", 1)
	l.v.SetDefault("agents.local_environment_probe", true)
	for _, role := range []string{"supervisor", "analyzer", "risk", "test", "environment"} {
		l.v.SetDefault("agents."+role+".command", "")
		l.v.SetDefault("agents."+role+".args", []string{})
	}

	// Report defaults
	l.v.SetDefault("report.dir", ".matt/reports")
	l.v.SetDefault("report.format", "json")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
