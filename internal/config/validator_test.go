package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "auto"},
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080, RequestTimeout: "5m"},
		Store:  StoreConfig{Path: ".matt/matt.db"},
		Dispatch: DispatchConfig{
			MaxConcurrent:     4,
			InvocationTimeout: "2m",
		},
		Workflow: WorkflowConfig{
			TestCategories:      []string{"unit"},
			EstimatePerCategory: 5,
		},
		Agents: AgentsConfig{Replicas: 1, LocalEnvironmentProbe: true},
		Report: ReportConfig{Dir: ".matt/reports", Format: "json"},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := NewValidator().Validate(validConfig()); err != nil {
		t.Errorf("Validate error = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad request timeout", func(c *Config) { c.Server.RequestTimeout = "soon" }, "server.request_timeout"},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"zero concurrency", func(c *Config) { c.Dispatch.MaxConcurrent = 0 }, "dispatch.max_concurrent"},
		{"negative invocation timeout", func(c *Config) { c.Dispatch.InvocationTimeout = "-1s" }, "dispatch.invocation_timeout"},
		{"no categories", func(c *Config) { c.Workflow.TestCategories = nil }, "workflow.test_categories"},
		{"blank category", func(c *Config) { c.Workflow.TestCategories = []string{" "} }, "workflow.test_categories"},
		{"zero estimate", func(c *Config) { c.Workflow.EstimatePerCategory = 0 }, "workflow.estimate_per_category"},
		{"zero replicas", func(c *Config) { c.Agents.Replicas = 0 }, "agents.replicas"},
		{"no environment backend", func(c *Config) { c.Agents.LocalEnvironmentProbe = false }, "agents.environment"},
		{"bad report format", func(c *Config) { c.Report.Format = "csv" }, "report.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := NewValidator().Validate(cfg)
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "loud"
	cfg.Server.Port = -1
	cfg.Report.Format = "csv"

	err := NewValidator().Validate(cfg)
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 3 {
		t.Errorf("collected %d errors, want 3: %v", len(verrs), verrs)
	}
}
