// Package agentcli invokes external agent CLIs, one configured command
// per role. The invocation input is piped to stdin as JSON and stdout
// is captured as the raw, unvalidated payload; coercion happens in the
// ingestion layer, never here.
package agentcli

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/logging"
)

// Command is one external agent CLI invocation.
type Command struct {
	Path string
	Args []string
}

// Invoker implements core.AgentInvoker over external commands.
type Invoker struct {
	commands map[core.AgentRole]Command
	prober   *EnvProber
	logger   *logging.Logger
}

// Option configures an invoker.
type Option func(*Invoker)

// WithLocalEnvironmentProbe serves the environment role with the
// built-in system prober when no command is configured for it.
func WithLocalEnvironmentProbe() Option {
	return func(i *Invoker) { i.prober = NewEnvProber() }
}

// New creates an invoker.
func New(commands map[core.AgentRole]Command, logger *logging.Logger, opts ...Option) *Invoker {
	if logger == nil {
		logger = logging.NewNop()
	}
	i := &Invoker{commands: commands, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke implements core.AgentInvoker.
func (i *Invoker) Invoke(ctx context.Context, role core.AgentRole, input core.InvocationInput) (json.RawMessage, error) {
	command, ok := i.commands[role]
	if !ok || command.Path == "" {
		if role == core.RoleEnvironment && i.prober != nil {
			return i.prober.Probe(ctx)
		}
		return nil, core.ErrValidation("AGENT_COMMAND_MISSING",
			"no command configured for role "+string(role))
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidPayload, "encoding invocation input").WithCause(err)
	}

	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.logger.WithAgent(string(role)).Debug("invoking agent command",
		"command", command.Path, "stage", input.Stage)

	if err := cmd.Run(); err != nil {
		// Context errors surface as-is so the dispatcher classifies
		// timeout and cancellation correctly.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.ErrTransient("AGENT_EXEC", "agent command failed").
			WithCause(err).
			WithDetail("stderr", truncate(stderr.String(), 512))
	}

	return json.RawMessage(bytes.TrimSpace(stdout.Bytes())), nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
