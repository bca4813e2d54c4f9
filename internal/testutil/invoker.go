// Package testutil provides shared fakes for orchestration tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

// ScriptedInvoker is a core.AgentInvoker whose behavior is supplied per
// test. It records every call it receives.
type ScriptedInvoker struct {
	mu    sync.Mutex
	calls []core.InvocationInput

	// Handler produces the response for each invocation. When nil, the
	// invoker returns an empty JSON object.
	Handler func(ctx context.Context, role core.AgentRole, input core.InvocationInput) (json.RawMessage, error)
}

// Invoke implements core.AgentInvoker.
func (s *ScriptedInvoker) Invoke(ctx context.Context, role core.AgentRole, input core.InvocationInput) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, input)
	s.mu.Unlock()

	if s.Handler != nil {
		return s.Handler(ctx, role, input)
	}
	return json.RawMessage(`{}`), nil
}

// CallCount returns how many invocations were made.
func (s *ScriptedInvoker) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Calls returns a copy of the recorded invocation inputs.
func (s *ScriptedInvoker) Calls() []core.InvocationInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.InvocationInput, len(s.calls))
	copy(out, s.calls)
	return out
}
