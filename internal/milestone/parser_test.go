package milestone

import (
	"sync"
	"testing"
	"time"

	"workgraph/internal/workitem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Patterns: []string{
			`^(?i)(?P<product>[.A-Za-z][A-Za-z .]*?)\s+(?P<version>\d+(?:\.\d+){0,2})(?:\.(?P<band>\d*x+))?(?:\s*(?P<suffixName>Preview|P|RC)\s*(?P<suffixNumber>\d+))?$`,
			`^(?i)(?P<version>\d+(?:\.\d+){0,2})(?:\.(?P<band>\d*x+))?(?:\s*(?P<suffixName>Preview|P|RC)\s*(?P<suffixNumber>\d+))?$`,
		},
		Products:       []string{".NET"},
		ProductAliases: map[string]string{"VS": "Visual Studio", "dotnet": ".NET"},
		SuffixAliases:  map[string]string{"Preview": "P"},
		VersionRanges: []VersionRange{
			{Product: "Visual Studio", Min: "16.0", Max: "17.99"},
		},
		Releases: []Release{
			{Product: "Visual Studio", Version: "16.8", Date: time.Date(2020, 11, 10, 0, 0, 0, 0, time.UTC)},
			{Product: ".NET", Version: "6.0", Date: time.Date(2021, 11, 8, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(testConfig())
	require.NoError(t, err)
	return p
}

func TestTryParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want workitem.Version
		ok   bool
	}{
		{"16.8", workitem.Version{Major: 16, Minor: 8}, true},
		{"16.8.1", workitem.Version{Major: 16, Minor: 8, Build: 1}, true},
		{"16.8 P2", workitem.Version{Major: 16, Minor: 8, Suffix: "P2"}, true},
		{"6.0-rc1", workitem.Version{Major: 6, Minor: 0, Suffix: "rc1"}, true},
		{"v7", workitem.Version{Major: 7}, true},
		{"", workitem.Version{}, false},
		{"Future", workitem.Version{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := TryParseVersion(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolveMilestone_PreviewAlias(t *testing.T) {
	p := newTestParser(t)

	m := p.ResolveMilestone("16.8 Preview 2", nil)
	require.NotNil(t, m)
	assert.Equal(t, workitem.Version{Major: 16, Minor: 8, Suffix: "P2"}, m.Version)
	assert.Equal(t, "Visual Studio", m.Product.Name)
	assert.Nil(t, m.ReleaseDate)
}

func TestResolveMilestone_Interning(t *testing.T) {
	p := newTestParser(t)

	a := p.ResolveMilestone("VS 16.8", nil)
	b := p.ResolveMilestone("16.8", nil)
	c := p.ResolveMilestone("Visual Studio 16.8", nil)

	require.NotNil(t, a)
	assert.Same(t, a, b)
	assert.Same(t, a, c)
	require.NotNil(t, a.ReleaseDate)
	assert.Equal(t, 2020, a.ReleaseDate.Year())
	assert.Same(t, a.Product, p.Product("vs"))
}

func TestResolveMilestone_Band(t *testing.T) {
	p := newTestParser(t)

	m := p.ResolveMilestone(".NET 6.0.1xx", nil)
	require.NotNil(t, m)
	assert.Equal(t, workitem.Version{Major: 6, Minor: 0, Build: 100}, m.Version)
	assert.False(t, m.Version.IsWhole())
}

func TestResolveMilestone_Rejections(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name       string
		raw        string
		candidates []string
	}{
		{"Empty", "", nil},
		{"NotAVersion", "Backlog", nil},
		{"UnknownProduct", "Windows 11.0", nil},
		{"NoProductInferable", "5.0", nil},
		{"AmbiguousCandidates", "5.0", []string{".NET", "Visual Studio"}},
		{"BandWithExplicitBuild", ".NET 6.0.1.2xx", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, p.ResolveMilestone(tt.raw, tt.candidates))
		})
	}
}

func TestResolveMilestone_SingleCandidate(t *testing.T) {
	p := newTestParser(t)

	m := p.ResolveMilestone("6.0", []string{"dotnet"})
	require.NotNil(t, m)
	assert.Equal(t, ".NET", m.Product.Name)
	require.NotNil(t, m.ReleaseDate)
}

func TestNewParser_InvalidPattern(t *testing.T) {
	_, err := NewParser(Config{Patterns: []string{`(?P<product>\w+`}})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewParser(Config{Patterns: []string{`(?P<product>\w+)`}})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewParser(Config{VersionRanges: []VersionRange{{Product: "X", Min: "a", Max: "1"}}})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParser_ProductsAndMilestonesSorted(t *testing.T) {
	p := newTestParser(t)
	p.InternReleases()
	p.ResolveMilestone("16.8 Preview 1", nil)

	products := p.Products()
	require.Len(t, products, 2)
	assert.Equal(t, ".NET", products[0].Name)
	assert.Equal(t, "Visual Studio", products[1].Name)

	ms := p.Milestones()
	require.Len(t, ms, 3)
	assert.Equal(t, ".NET 6.0", ms[0].String())
	assert.Equal(t, "Visual Studio 16.8 P1", ms[1].String())
	assert.Equal(t, "Visual Studio 16.8", ms[2].String())
}

func TestParser_ConcurrentInterning(t *testing.T) {
	p := newTestParser(t)

	var wg sync.WaitGroup
	results := make([]*workitem.Milestone, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.ResolveMilestone("16.9 P3", nil)
		}(i)
	}
	wg.Wait()

	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}
