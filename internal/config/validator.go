package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateStore(&cfg.Store)
	v.validateDispatch(&cfg.Dispatch)
	v.validateWorkflow(&cfg.Workflow)
	v.validateAgents(&cfg.Agents)
	v.validateReport(&cfg.Report)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if _, err := cfg.ParseRequestTimeout(); err != nil {
		v.addError("server.request_timeout", cfg.RequestTimeout, "must be a valid duration")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	if cfg.Path == "" {
		v.addError("store.path", cfg.Path, "cannot be empty")
	}
}

func (v *Validator) validateDispatch(cfg *DispatchConfig) {
	if cfg.MaxConcurrent < 1 {
		v.addError("dispatch.max_concurrent", cfg.MaxConcurrent, "must be at least 1")
	}
	if d, err := cfg.ParseInvocationTimeout(); err != nil || d <= 0 {
		v.addError("dispatch.invocation_timeout", cfg.InvocationTimeout, "must be a positive duration")
	}
}

func (v *Validator) validateWorkflow(cfg *WorkflowConfig) {
	if len(cfg.TestCategories) == 0 {
		v.addError("workflow.test_categories", cfg.TestCategories, "must name at least one category")
	}
	for _, category := range cfg.TestCategories {
		if strings.TrimSpace(category) == "" {
			v.addError("workflow.test_categories", category, "categories cannot be blank")
		}
	}
	if cfg.EstimatePerCategory < 1 {
		v.addError("workflow.estimate_per_category", cfg.EstimatePerCategory, "must be at least 1")
	}
}

func (v *Validator) validateAgents(cfg *AgentsConfig) {
	if cfg.Replicas < 1 {
		v.addError("agents.replicas", cfg.Replicas, "must be at least 1")
	}
	if cfg.Environment.Command == "" && !cfg.LocalEnvironmentProbe {
		v.addError("agents.environment", cfg.Environment.Command,
			"needs a command or agents.local_environment_probe enabled")
	}
}

func (v *Validator) validateReport(cfg *ReportConfig) {
	switch cfg.Format {
	case "json", "yaml":
	default:
		v.addError("report.format", cfg.Format, "must be json or yaml")
	}
}
