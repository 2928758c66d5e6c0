package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"workgraph/internal/config"
	"workgraph/internal/graph"
	"workgraph/internal/roadmap"
	"workgraph/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func fixtureWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	eng := config.DefaultEngine()
	eng.AzureOrg = "devdiv"
	eng.Origins = []config.Origin{{Name: "dotnet/runtime", Products: []string{".NET"}}}

	ws, err := loadWorkspace(eng, filepath.Join("..", "..", "..", "internal", "workspace", "testdata", "snapshot"), 2)
	require.NoError(t, err)
	return ws
}

func TestRootCommand(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["build"])
	assert.True(t, names["roadmap"])
	assert.True(t, names["diagnostics"])
	assert.True(t, names["tree"])
	assert.True(t, names["aging"])

	for _, flag := range []string{"verbose", "snapshot", "config"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}

	cmd := newRoadmapCmd()
	out := cmd.Flags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, FormatYAML, out.DefValue)
}

func TestLoadWorkspace_MissingDirectory(t *testing.T) {
	ws, err := loadWorkspace(config.DefaultEngine(), filepath.Join(t.TempDir(), "absent"), 1)
	require.NoError(t, err)
	assert.Empty(t, ws.WorkItems())
}

func TestRunBuild(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runBuild(&buf, fixtureWorkspace(t)))

	out := buf.String()
	assert.Contains(t, out, "Items:       4 (2 roots)")
	assert.Contains(t, out, "Diagnostics: 2")
	assert.Contains(t, out, "CR01 devdiv#100: devdiv#100 links to devdiv#101, which does not exist")
}

func TestRunDiagnostics(t *testing.T) {
	ws := fixtureWorkspace(t)

	var text bytes.Buffer
	require.NoError(t, runDiagnostics(&text, ws, FormatText))
	assert.Contains(t, text.String(), "CR01 dotnet/runtime#1:")

	var js bytes.Buffer
	require.NoError(t, runDiagnostics(&js, ws, "JSON"))
	var fromJSON []graph.Diagnostic
	require.NoError(t, json.Unmarshal(js.Bytes(), &fromJSON))
	assert.Equal(t, ws.Diagnostics(), fromJSON)

	var ym bytes.Buffer
	require.NoError(t, runDiagnostics(&ym, ws, FormatYAML))
	var fromYAML []graph.Diagnostic
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	assert.Equal(t, ws.Diagnostics(), fromYAML)

	assert.ErrorIs(t, runDiagnostics(&bytes.Buffer{}, ws, "xml"), errUnsupportedFormat)
}

func TestRunRoadmap(t *testing.T) {
	ws := fixtureWorkspace(t)

	var buf bytes.Buffer
	require.NoError(t, runRoadmap(&buf, ws, &RoadmapFlags{Product: ".NET", Output: FormatYAML}))

	var view roadmapView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, ".NET", view.Product)
	require.Len(t, view.Milestones, 5)
	assert.Equal(t, milestoneView{Version: "9.0", Released: "2024-11-12"}, view.Milestones[4])

	require.Len(t, view.Items, 3)
	assert.Equal(t, "dotnet/runtime#1", view.Items[0].ID)
	assert.Equal(t, []entryView{{Milestone: "9.0", State: "Committed"}}, view.Items[0].Entries)
	assert.Empty(t, view.Items[1].Entries)
}

func TestRunRoadmap_Range(t *testing.T) {
	ws := fixtureWorkspace(t)

	var buf bytes.Buffer
	require.NoError(t, runRoadmap(&buf, ws, &RoadmapFlags{Product: ".net", From: "7.0", To: "8.0", Output: FormatJSON}))

	var view roadmapView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	require.Len(t, view.Milestones, 2)
	assert.Equal(t, "7.0", view.Milestones[0].Version)

	story := view.Items[2]
	assert.Equal(t, "dotnet/runtime#2", story.ID)
	assert.Nil(t, story.Before)
	assert.Empty(t, story.Entries)
	require.NotNil(t, story.After)
	assert.Equal(t, entryView{Milestone: "9.0", State: "Completed"}, *story.After)

	buf.Reset()
	require.NoError(t, runRoadmap(&buf, ws, &RoadmapFlags{Product: ".NET", From: "9.0", Output: FormatJSON}))
	view = roadmapView{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	require.Len(t, view.Milestones, 1)
}

func TestRunRoadmap_Errors(t *testing.T) {
	ws := fixtureWorkspace(t)
	var buf bytes.Buffer

	err := runRoadmap(&buf, ws, &RoadmapFlags{Product: "Nope", Output: FormatYAML})
	assert.ErrorIs(t, err, roadmap.ErrUnknownProduct)

	err = runRoadmap(&buf, ws, &RoadmapFlags{Product: ".NET", From: "12.0", Output: FormatYAML})
	assert.ErrorIs(t, err, roadmap.ErrUnknownMilestone)

	err = runRoadmap(&buf, ws, &RoadmapFlags{Product: ".NET", From: "9.0", To: "8.0", Output: FormatYAML})
	assert.ErrorIs(t, err, roadmap.ErrInvalidRange)

	err = runRoadmap(&buf, ws, &RoadmapFlags{Product: ".NET", Output: "csv"})
	assert.ErrorIs(t, err, errUnsupportedFormat)
}

func TestRunRoadmap_Mermaid(t *testing.T) {
	ws := fixtureWorkspace(t)

	var buf bytes.Buffer
	require.NoError(t, runRoadmap(&buf, ws, &RoadmapFlags{Product: ".NET", From: "8.0", Output: FormatMermaid}))
	out := buf.String()
	assert.Contains(t, out, "xychart-beta")
	assert.Contains(t, out, `x-axis ["8.0", "9.0"]`)
}

func TestRunTree(t *testing.T) {
	ws := fixtureWorkspace(t)

	var buf bytes.Buffer
	require.NoError(t, runTree(&buf, ws, ""))
	out := buf.String()
	assert.Contains(t, out, "flowchart TD")
	assert.Contains(t, out, "Theme devdiv#100<br/>Modern .NET")
	assert.Contains(t, out, "UserStory dotnet/runtime#2<br/>Tune allocation budget\"]:::closed")

	buf.Reset()
	require.NoError(t, runTree(&buf, ws, "DOTNET/RUNTIME#1"))
	assert.NotContains(t, buf.String(), "devdiv#100")

	assert.ErrorIs(t, runTree(&buf, ws, "nope#1"), errUnknownItem)
}

func TestRunAging(t *testing.T) {
	ws := fixtureWorkspace(t)
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, runAging(&buf, ws, &AgingFlags{Output: FormatJSON}, now))
	var view agingView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))

	ages := map[string]string{}
	for _, a := range view.Items {
		ages[a.ID] = a.State
	}
	assert.Equal(t, "Committed", ages["dotnet/runtime#1"])
	assert.NotContains(t, ages, "dotnet/runtime#2", "closed items are not aged")

	buf.Reset()
	require.NoError(t, runAging(&buf, ws, &AgingFlags{Output: FormatText}, now))
	assert.Contains(t, buf.String(), "State residency (days):")
	assert.Contains(t, buf.String(), "dotnet/runtime#1")

	assert.ErrorIs(t, runAging(&buf, ws, &AgingFlags{Output: "csv"}, now), errUnsupportedFormat)
}
