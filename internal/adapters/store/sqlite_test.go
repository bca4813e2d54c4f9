package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matt.db")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, path
}

func sampleProject() *core.Project {
	return core.NewProject("demo", core.SourceDescriptor{Type: "path", Path: "/tmp/demo"})
}

func TestSQLiteStore_ProjectCRUD(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := sampleProject()
	require.NoError(t, s.SaveProject(ctx, p))
	require.NotZero(t, p.ID, "insert must assign an id")

	loaded, err := s.LoadProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, loaded.Name)
	assert.Equal(t, p.Source, loaded.Source)
	assert.Equal(t, core.AnalysisStatusPending, loaded.AnalysisStatus)

	loaded.AnalysisStatus = core.AnalysisStatusCompleted
	loaded.UpdatedAt = time.Now()
	require.NoError(t, s.SaveProject(ctx, loaded))

	again, err := s.LoadProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.AnalysisStatusCompleted, again.AnalysisStatus)

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestSQLiteStore_ProjectNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadProject(ctx, 999)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	missing := sampleProject()
	missing.ID = 999
	err = s.SaveProject(ctx, missing)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound), "updating an unknown project fails")
}

func TestSQLiteStore_TestCaseUpsert(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := sampleProject()
	require.NoError(t, s.SaveProject(ctx, p))

	tc := &core.TestCase{
		ID:        1,
		ProjectID: p.ID,
		Name:      "login flow",
		Type:      "e2e",
		Priority:  "high",
		Framework: "playwright",
		Status:    core.TestStatusGenerated,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.UpsertTestCase(ctx, tc))

	// Upserting the same id updates execution state in place.
	ms := int64(120)
	tc.Status = core.TestStatusPassed
	tc.ExecutionMS = &ms
	tc.Result = []byte(`{"assertions":12}`)
	require.NoError(t, s.UpsertTestCase(ctx, tc))

	cases, err := s.LoadTestCases(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, core.TestStatusPassed, cases[0].Status)
	require.NotNil(t, cases[0].ExecutionMS)
	assert.Equal(t, ms, *cases[0].ExecutionMS)
	assert.JSONEq(t, `{"assertions":12}`, string(cases[0].Result))
}

func TestSQLiteStore_TestCaseIDsArePerProject(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p1, p2 := sampleProject(), sampleProject()
	require.NoError(t, s.SaveProject(ctx, p1))
	require.NoError(t, s.SaveProject(ctx, p2))

	for _, pid := range []core.ProjectID{p1.ID, p2.ID} {
		require.NoError(t, s.UpsertTestCase(ctx, &core.TestCase{
			ID: 1, ProjectID: pid, Name: "shared id", Type: "unit",
			Priority: "medium", Framework: "unknown",
			Status: core.TestStatusGenerated, CreatedAt: time.Now(),
		}))
	}

	cases, err := s.LoadTestCases(ctx, p1.ID)
	require.NoError(t, err)
	assert.Len(t, cases, 1, "same case id in another project must not collide")
}

func TestSQLiteStore_AnalysisRecords(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := sampleProject()
	require.NoError(t, s.SaveProject(ctx, p))

	now := time.Now()
	first := &core.AnalysisRecord{
		ProjectID:   p.ID,
		AgentID:     "agent-1",
		Role:        core.RoleAnalyzer,
		Payload:     []byte(`{"summary":"ok"}`),
		Status:      core.RecordStatusCompleted,
		StartedAt:   now.Add(-time.Second),
		CompletedAt: &now,
	}
	require.NoError(t, s.SaveAnalysis(ctx, first))
	require.NotZero(t, first.ID)

	// New runs append, never overwrite.
	second := &core.AnalysisRecord{
		ProjectID: p.ID,
		AgentID:   "agent-2",
		Role:      core.RoleRisk,
		Status:    core.RecordStatusFailed,
		StartedAt: now,
	}
	require.NoError(t, s.SaveAnalysis(ctx, second))
	assert.Greater(t, second.ID, first.ID)

	records, err := s.LoadAnalyses(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, core.RoleAnalyzer, records[0].Role)
	assert.JSONEq(t, `{"summary":"ok"}`, string(records[0].Payload))
	assert.Nil(t, records[1].CompletedAt)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matt.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	p := sampleProject()
	require.NoError(t, s.SaveProject(ctx, p))
	require.NoError(t, s.UpsertTestCase(ctx, &core.TestCase{
		ID: 1, ProjectID: p.ID, Name: "case", Type: "unit",
		Priority: "medium", Framework: "unknown",
		Status: core.TestStatusGenerated, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	// Re-running migrations on an existing database is a no-op.
	reopened, err := New(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	loaded, err := reopened.LoadProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, loaded.Name)

	cases, err := reopened.LoadTestCases(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}
