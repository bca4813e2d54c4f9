package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/workflow"
)

type createProjectRequest struct {
	Name   string                `json:"name"`
	Source core.SourceDescriptor `json:"source"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	p, err := s.orch.CreateProject(r.Context(), req.Name, req.Source)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.orch.ListProjects(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if projects == nil {
		projects = []*core.Project{}
	}
	s.respondJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	p, err := s.orch.GetProject(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	s.handleStageTrigger(w, r, s.orch.StartAnalysis)
}

func (s *Server) handleGenerateTests(w http.ResponseWriter, r *http.Request) {
	s.handleStageTrigger(w, r, s.orch.GenerateTests)
}

func (s *Server) handleGenerateScripts(w http.ResponseWriter, r *http.Request) {
	s.handleStageTrigger(w, r, s.orch.GenerateScripts)
}

func (s *Server) handleRunTests(w http.ResponseWriter, r *http.Request) {
	s.handleStageTrigger(w, r, s.orch.RunTests)
}

func (s *Server) handleStageTrigger(w http.ResponseWriter, r *http.Request, trigger func(context.Context, core.ProjectID) (*workflow.StageResult, error)) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	result, err := trigger(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleResetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	state, err := s.orch.ResetProject(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	state, err := s.orch.GetWorkflowState(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	stats, version, err := s.orch.GetStats(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":   stats,
		"version": version,
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	report, err := s.orch.GetReport(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.agents.List())
}

func (s *Server) handleRecoverAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := s.agents.Recover(agentID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	agent, err := s.agents.Get(agentID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

// projectID parses the projectID URL parameter, writing the error
// response itself when the value is unusable.
func (s *Server) projectID(w http.ResponseWriter, r *http.Request) (core.ProjectID, bool) {
	raw := chi.URLParam(r, "projectID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid project id: "+raw)
		return 0, false
	}
	return core.ProjectID(id), true
}
