package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/adapters/agentcli"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/adapters/store"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/aggregate"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/config"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/dispatch"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/events"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/logging"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/registry"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/workflow"
)

// loadConfig loads and validates configuration, honoring the --config
// flag and any viper flag bindings.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
}

// app bundles the wired orchestration components behind one close call.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *store.SQLiteStore
	agents *registry.Registry
	bus    *events.Bus
	orch   *workflow.Orchestrator
}

// buildApp wires the full orchestration stack from configuration and
// restores workflow state from the store.
func buildApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	agents := registry.New()
	replicas := cfg.Agents.Replicas
	if replicas < 1 {
		replicas = 1
	}
	for _, role := range core.AllRoles() {
		for i := 1; i <= replicas; i++ {
			id := fmt.Sprintf("%s-%d", role, i)
			if err := agents.Register(id, id, role); err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("registering agent %s: %w", id, err)
			}
		}
	}

	invocationTimeout, err := cfg.Dispatch.ParseInvocationTimeout()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("parsing dispatch.invocation_timeout: %w", err)
	}

	var invokerOpts []agentcli.Option
	if cfg.Agents.LocalEnvironmentProbe {
		invokerOpts = append(invokerOpts, agentcli.WithLocalEnvironmentProbe())
	}
	invoker := agentcli.New(agentCommands(cfg), logger, invokerOpts...)

	bus := events.New(100)
	d := dispatch.New(dispatch.Config{
		MaxConcurrent:     cfg.Dispatch.MaxConcurrent,
		InvocationTimeout: invocationTimeout,
	}, agents, invoker, bus, logger)

	orch := workflow.New(workflow.Config{
		TestCategories:      cfg.Workflow.TestCategories,
		EstimatePerCategory: cfg.Workflow.EstimatePerCategory,
	}, st, d, aggregate.New(bus), bus, logger)

	if err := orch.Restore(ctx); err != nil {
		bus.Close()
		_ = st.Close()
		return nil, fmt.Errorf("restoring workflow state: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		agents: agents,
		bus:    bus,
		orch:   orch,
	}, nil
}

func (a *app) close() {
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

// agentCommands maps configured agent CLIs onto roles. Roles with no
// configured command are left out; the invoker reports them as
// unconfigured unless the local environment prober covers them.
func agentCommands(cfg *config.Config) map[core.AgentRole]agentcli.Command {
	out := make(map[core.AgentRole]agentcli.Command)
	add := func(role core.AgentRole, ac config.AgentCommand) {
		if ac.Command != "" {
			out[role] = agentcli.Command{Path: ac.Command, Args: ac.Args}
		}
	}
	add(core.RoleSupervisor, cfg.Agents.Supervisor)
	add(core.RoleAnalyzer, cfg.Agents.Analyzer)
	add(core.RoleRisk, cfg.Agents.Risk)
	add(core.RoleTest, cfg.Agents.Test)
	add(core.RoleEnvironment, cfg.Agents.Environment)
	return out
}
