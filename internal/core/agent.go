package core

// AgentRole specializes an agent to one kind of work.
type AgentRole string

const (
	RoleSupervisor  AgentRole = "supervisor"
	RoleAnalyzer    AgentRole = "analyzer"
	RoleRisk        AgentRole = "risk"
	RoleTest        AgentRole = "test"
	RoleEnvironment AgentRole = "environment"
)

// AllRoles returns every known agent role.
func AllRoles() []AgentRole {
	return []AgentRole{RoleSupervisor, RoleAnalyzer, RoleRisk, RoleTest, RoleEnvironment}
}

// ValidRole checks whether a role string is known.
func ValidRole(r AgentRole) bool {
	switch r {
	case RoleSupervisor, RoleAnalyzer, RoleRisk, RoleTest, RoleEnvironment:
		return true
	default:
		return false
	}
}

// AgentStatus reflects the most recent dispatch outcome, not history.
type AgentStatus string

const (
	AgentStatusReady AgentStatus = "ready"
	AgentStatusBusy  AgentStatus = "busy"
	AgentStatusError AgentStatus = "error"
)

// AgentInfo describes a registered agent. Agents are stateless workers
// from the orchestrator's point of view.
type AgentInfo struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Role   AgentRole   `json:"role"`
	Status AgentStatus `json:"status"`
}
