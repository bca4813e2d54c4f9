package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

// MemStore is an in-memory core.Store for tests.
type MemStore struct {
	mu           sync.Mutex
	projects     map[core.ProjectID]*core.Project
	cases        map[core.ProjectID]map[core.TestCaseID]*core.TestCase
	analyses     map[core.ProjectID][]*core.AnalysisRecord
	nextProject  core.ProjectID
	nextAnalysis core.AnalysisID

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		projects: make(map[core.ProjectID]*core.Project),
		cases:    make(map[core.ProjectID]map[core.TestCaseID]*core.TestCase),
		analyses: make(map[core.ProjectID][]*core.AnalysisRecord),
	}
}

// SaveProject inserts or updates a project, assigning an id on insert.
func (s *MemStore) SaveProject(_ context.Context, p *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if p.ID == 0 {
		s.nextProject++
		p.ID = s.nextProject
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

// LoadProject returns a copy of the stored project.
func (s *MemStore) LoadProject(_ context.Context, id core.ProjectID) (*core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	p, ok := s.projects[id]
	if !ok {
		return nil, core.ErrNotFound("project", id)
	}
	cp := *p
	return &cp, nil
}

// ListProjects returns all projects ordered by id.
func (s *MemStore) ListProjects(_ context.Context) ([]*core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]*core.Project, 0, len(s.projects))
	for _, p := range s.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertTestCase inserts or replaces a test case.
func (s *MemStore) UpsertTestCase(_ context.Context, tc *core.TestCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	m, ok := s.cases[tc.ProjectID]
	if !ok {
		m = make(map[core.TestCaseID]*core.TestCase)
		s.cases[tc.ProjectID] = m
	}
	cp := *tc
	m[tc.ID] = &cp
	return nil
}

// LoadTestCases returns a project's test cases ordered by id.
func (s *MemStore) LoadTestCases(_ context.Context, projectID core.ProjectID) ([]*core.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]*core.TestCase, 0, len(s.cases[projectID]))
	for _, tc := range s.cases[projectID] {
		cp := *tc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveAnalysis appends an analysis record, assigning an id.
func (s *MemStore) SaveAnalysis(_ context.Context, a *core.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	s.nextAnalysis++
	a.ID = s.nextAnalysis
	cp := *a
	s.analyses[a.ProjectID] = append(s.analyses[a.ProjectID], &cp)
	return nil
}

// LoadAnalyses returns a project's analysis records in insertion order.
func (s *MemStore) LoadAnalyses(_ context.Context, projectID core.ProjectID) ([]*core.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	records := s.analyses[projectID]
	out := make([]*core.AnalysisRecord, 0, len(records))
	for _, rec := range records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}
