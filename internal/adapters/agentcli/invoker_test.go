package agentcli

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test shells out via /bin/sh")
	}
}

func analysisInput() core.InvocationInput {
	return core.InvocationInput{
		Stage:   core.StageAnalysis,
		Project: core.Project{ID: 1, Name: "demo"},
	}
}

func TestInvoke_CapturesStdout(t *testing.T) {
	requireUnix(t)

	inv := New(map[core.AgentRole]Command{
		core.RoleAnalyzer: {Path: "/bin/sh", Args: []string{"-c", `cat >/dev/null; echo '{"summary":"done"}'`}},
	}, nil)

	raw, err := inv.Invoke(context.Background(), core.RoleAnalyzer, analysisInput())
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "done", payload["summary"])
}

func TestInvoke_PipesInputAsJSON(t *testing.T) {
	requireUnix(t)

	// The command echoes its stdin back; the invocation input must
	// round-trip through it.
	inv := New(map[core.AgentRole]Command{
		core.RoleAnalyzer: {Path: "/bin/cat"},
	}, nil)

	raw, err := inv.Invoke(context.Background(), core.RoleAnalyzer, analysisInput())
	require.NoError(t, err)

	var echoed core.InvocationInput
	require.NoError(t, json.Unmarshal(raw, &echoed))
	assert.Equal(t, core.StageAnalysis, echoed.Stage)
	assert.Equal(t, core.ProjectID(1), echoed.Project.ID)
}

func TestInvoke_CommandFailureIsTransient(t *testing.T) {
	requireUnix(t)

	inv := New(map[core.AgentRole]Command{
		core.RoleAnalyzer: {Path: "/bin/sh", Args: []string{"-c", "echo broken >&2; exit 3"}},
	}, nil)

	_, err := inv.Invoke(context.Background(), core.RoleAnalyzer, analysisInput())
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err), "command failure should be retryable")

	var domErr *core.DomainError
	require.True(t, errors.As(err, &domErr))
	assert.Contains(t, domErr.Details["stderr"], "broken")
}

func TestInvoke_ContextDeadline(t *testing.T) {
	requireUnix(t)

	inv := New(map[core.AgentRole]Command{
		core.RoleAnalyzer: {Path: "/bin/sh", Args: []string{"-c", "sleep 5"}},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, core.RoleAnalyzer, analysisInput())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvoke_MissingCommand(t *testing.T) {
	inv := New(nil, nil)

	_, err := inv.Invoke(context.Background(), core.RoleAnalyzer, analysisInput())
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestInvoke_EnvironmentFallsBackToProber(t *testing.T) {
	inv := New(nil, nil, WithLocalEnvironmentProbe())

	raw, err := inv.Invoke(context.Background(), core.RoleEnvironment, core.InvocationInput{Stage: core.StageAnalysis})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "environment", payload["role"])
	assert.NotEmpty(t, payload["summary"])
}

func TestEnvProber_Probe(t *testing.T) {
	raw, err := NewEnvProber().Probe(context.Background())
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, runtime.GOOS, payload["os"])
}
