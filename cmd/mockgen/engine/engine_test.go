package engine

import (
	"testing"
	"time"

	"workgraph/internal/config"
	"workgraph/internal/github"
	"workgraph/internal/graph"
	"workgraph/internal/snapshot"
	"workgraph/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func engineConfig() *config.Engine {
	cfg := config.DefaultEngine()
	cfg.AzureOrg = "devdiv"
	cfg.Origins = []config.Origin{{Name: "dotnet/runtime", Products: []string{".NET"}}}
	return cfg
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := GeneratorConfig{Scenario: "chaos", Distribution: "weibull", Count: 40, Seed: 7, Now: now}

	a := Generate(cfg)
	b := Generate(cfg)
	assert.Equal(t, a, b)
	assert.Len(t, a.WorkItems, len(areas))
	assert.Len(t, a.Issues, 41, "chaos adds the transferred copy")
	assert.Len(t, a.Transfers, 1)
}

func TestGenerate_MildBuildsCleanly(t *testing.T) {
	data := Generate(GeneratorConfig{Count: 30, Seed: 3, Now: now})
	require.Empty(t, data.Transfers)

	dir := t.TempDir()
	require.NoError(t, Save(dir, data))

	store := snapshot.NewStore()
	require.NoError(t, store.Load(dir))
	ws, err := workspace.Build(engineConfig(), store.Snapshot())
	require.NoError(t, err)

	assert.Len(t, ws.WorkItems(), 30+len(areas))
	assert.Empty(t, ws.Diagnostics())
	// Scenarios are the only roots: every epic hangs below one.
	assert.Len(t, ws.RootWorkItems(), len(areas))
}

func TestGenerate_ChaosReportsDiagnostics(t *testing.T) {
	data := Generate(GeneratorConfig{Scenario: "chaos", Count: 30, Seed: 5, Now: now})

	snap := &snapshot.Snapshot{
		Issues:    data.Issues,
		WorkItems: data.WorkItems,
		Links:     data.Links,
		Transfers: data.Transfers,
	}
	ws, err := workspace.Build(engineConfig(), snap)
	require.NoError(t, err)

	codes := map[graph.Code]int{}
	for _, d := range ws.Diagnostics() {
		codes[d.Code]++
	}
	assert.Equal(t, 1, codes[graph.DanglingLink])
	assert.Equal(t, 1, codes[graph.Cycle])
	assert.Len(t, ws.WorkItems(), 30+len(areas), "transferred copy is skipped")
}

func TestMilestoneFor(t *testing.T) {
	assert.Equal(t, "9.0", milestoneFor(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "10.0", milestoneFor(time.Date(2024, time.November, 20, 0, 0, 0, 0, time.UTC)))
}

func TestSummary(t *testing.T) {
	data := Data{Issues: make([]github.IssueDTO, 2)}
	data.Issues[0].State = "closed"
	assert.Equal(t, "2 issues (1 closed), 0 work items, 0 links, 0 transfers", Summary(data))
}
