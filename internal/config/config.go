// Package config loads and validates application configuration with a
// flags > environment > project file > user file > defaults precedence
// chain.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	Report   ReportConfig   `mapstructure:"report"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	RequestTimeout string   `mapstructure:"request_timeout"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// DispatchConfig configures the task dispatcher.
type DispatchConfig struct {
	MaxConcurrent     int64  `mapstructure:"max_concurrent"`
	InvocationTimeout string `mapstructure:"invocation_timeout"`
}

// WorkflowConfig configures the orchestrator.
type WorkflowConfig struct {
	TestCategories      []string `mapstructure:"test_categories"`
	EstimatePerCategory int      `mapstructure:"estimate_per_category"`
}

// AgentsConfig configures the agent backend, one external command per
// role. The environment role may use the built-in local prober instead
// of a command.
type AgentsConfig struct {
	Supervisor  AgentCommand `mapstructure:"supervisor"`
	Analyzer    AgentCommand `mapstructure:"analyzer"`
	Risk        AgentCommand `mapstructure:"risk"`
	Test        AgentCommand `mapstructure:"test"`
	Environment AgentCommand `mapstructure:"environment"`

	// LocalEnvironmentProbe serves the environment role with the
	// built-in system prober when no command is configured.
	LocalEnvironmentProbe bool `mapstructure:"local_environment_probe"`

	// Replicas is how many agents per role are registered.
	Replicas int `mapstructure:"replicas"`
}

// AgentCommand is one external agent CLI invocation.
type AgentCommand struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// ReportConfig configures report export.
type ReportConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"` // json or yaml
}

// ParseRequestTimeout parses the server request timeout.
func (c ServerConfig) ParseRequestTimeout() (time.Duration, error) {
	return time.ParseDuration(c.RequestTimeout)
}

// ParseInvocationTimeout parses the per-invocation deadline.
func (c DispatchConfig) ParseInvocationTimeout() (time.Duration, error) {
	return time.ParseDuration(c.InvocationTimeout)
}
