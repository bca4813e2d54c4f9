// Package registry holds the catalog of available agents and their
// current status. Status transitions are compare-and-set so concurrent
// dispatches never lose updates.
package registry

import (
	"sort"
	"sync"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

// Registry is an in-memory agent catalog keyed by agent id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*core.AgentInfo
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*core.AgentInfo)}
}

// Register adds an agent in the ready state. Registering an existing id
// is a conflict.
func (r *Registry) Register(id, name string, role core.AgentRole) error {
	if id == "" {
		return core.ErrValidation("AGENT_ID_REQUIRED", "agent id cannot be empty")
	}
	if !core.ValidRole(role) {
		return core.ErrValidation("AGENT_ROLE_INVALID", "unknown agent role: "+string(role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; exists {
		return core.ErrState("AGENT_EXISTS", "agent already registered: "+id)
	}
	r.agents[id] = &core.AgentInfo{
		ID:     id,
		Name:   name,
		Role:   role,
		Status: core.AgentStatusReady,
	}
	return nil
}

// Get returns a copy of the agent's current info.
func (r *Registry) Get(id string) (core.AgentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return core.AgentInfo{}, core.ErrNotFound("agent", id)
	}
	return *a, nil
}

// List returns all agents ordered by id.
func (r *Registry) List() []core.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Acquire claims a ready agent for the given role, transitioning it
// ready→busy atomically. Returns AgentUnavailable when no ready agent
// exists for the role; callers treat that as transient with a longer
// backoff.
func (r *Registry) Acquire(role core.AgentRole) (core.AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := r.agents[id]
		if a.Role == role && a.Status == core.AgentStatusReady {
			a.Status = core.AgentStatusBusy
			return *a, nil
		}
	}
	return core.AgentInfo{}, core.ErrAgentUnavailable(role)
}

// Release returns a busy agent to ready, or marks it errored when its
// invocation failed. Releasing an agent that is not busy is a no-op so a
// late retry cannot clobber a newer acquisition cycle.
func (r *Registry) Release(id string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.agents[id]
	if !exists || a.Status != core.AgentStatusBusy {
		return
	}
	if ok {
		a.Status = core.AgentStatusReady
	} else {
		a.Status = core.AgentStatusError
	}
}

// Recover transitions an errored agent back to ready. Used when the
// operator or a health probe decides the agent is usable again.
func (r *Registry) Recover(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.agents[id]
	if !exists {
		return core.ErrNotFound("agent", id)
	}
	if a.Status != core.AgentStatusError {
		return core.ErrState("AGENT_NOT_ERRORED", "agent is not in error state: "+id)
	}
	a.Status = core.AgentStatusReady
	return nil
}

// ReadyCount returns the number of ready agents for a role.
func (r *Registry) ReadyCount(role core.AgentRole) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.agents {
		if a.Role == role && a.Status == core.AgentStatusReady {
			n++
		}
	}
	return n
}
