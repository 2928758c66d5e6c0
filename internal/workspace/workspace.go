// Package workspace builds the immutable, queryable set of work items from one
// snapshot of crawled data.
package workspace

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"workgraph/internal/azdo"
	"workgraph/internal/config"
	"workgraph/internal/github"
	"workgraph/internal/graph"
	"workgraph/internal/history"
	"workgraph/internal/identity"
	"workgraph/internal/links"
	"workgraph/internal/milestone"
	"workgraph/internal/snapshot"
	"workgraph/internal/source"
	"workgraph/internal/workitem"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNilConfig is returned when Build is called without a configuration.
	ErrNilConfig = errors.New("nil engine configuration")
	// ErrNilSnapshot is returned when Build is called without a snapshot.
	ErrNilSnapshot = errors.New("nil snapshot")
	// ErrDuplicateItem is returned when two crawled items map to the same id.
	ErrDuplicateItem = graph.ErrDuplicateItem
)

// Workspace is the result of one build. It is never modified after Build
// returns and is safe for concurrent readers. Accessors return copies of the
// internal slices; the items they point to must be treated as read-only.
type Workspace struct {
	id string

	items       []*workitem.WorkItem
	roots       []*workitem.WorkItem
	byID        map[string]*workitem.WorkItem
	parents     map[string][]*workitem.WorkItem
	children    map[string][]*workitem.WorkItem
	areas       []*AreaNode
	users       []*workitem.User
	products    []*workitem.Product
	milestones  []*workitem.Milestone
	diagnostics []graph.Diagnostic

	defaultProducts map[string]*workitem.Product
}

type options struct {
	workers int
}

// Option tunes a build.
type Option func(*options)

// WithWorkers bounds the number of items reconstructed concurrently. Values
// below one select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Build turns a snapshot into a workspace. Adapter contract violations and
// unreplayable change logs fail the build; dangling links and cycles are
// repaired and reported as diagnostics.
func Build(cfg *config.Engine, snap *snapshot.Snapshot, opts ...Option) (*Workspace, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if snap == nil {
		return nil, ErrNilSnapshot
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	buildID := uuid.NewString()
	logger := log.With().Str("build", buildID).Logger()

	parser, err := milestone.NewParser(cfg.Milestones)
	if err != nil {
		return nil, fmt.Errorf("failed to configure milestone parser: %w", err)
	}
	parser.InternReleases()

	users := identity.NewResolver(snap.Links)
	refs := links.NewResolver(cfg.AzureOrg, snap.Transfers)
	reconstructor := history.NewReconstructor(parser, users, cfg.CompactionWindow)

	candidates, err := mapCandidates(cfg, snap, refs)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("candidates", len(candidates)).Msg("Mapped raw items")

	// Per-item reconstruction is independent; the graph needs all of it.
	items := make([]*workitem.WorkItem, len(candidates))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, c := range candidates {
		g.Go(func() error {
			it, err := buildItem(c, reconstructor, users, cfg)
			if err != nil {
				return fmt.Errorf("item %s: %w", c.ID, err)
			}
			items[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var edges []graph.Edge
	for _, c := range candidates {
		edges = append(edges, c.Edges...)
	}

	res, err := graph.Build(items, edges)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		id:              buildID,
		items:           res.Items,
		roots:           res.Roots,
		byID:            make(map[string]*workitem.WorkItem, len(res.Items)),
		parents:         res.Parents,
		children:        res.Children,
		users:           users.Users(),
		diagnostics:     res.Diagnostics,
		defaultProducts: make(map[string]*workitem.Product),
	}
	for _, it := range res.Items {
		ws.byID[it.ID] = it
	}
	ws.precompute(cfg, parser)

	logger.Info().
		Int("items", len(ws.items)).
		Int("roots", len(ws.roots)).
		Int("users", len(ws.users)).
		Int("milestones", len(ws.milestones)).
		Int("diagnostics", len(ws.diagnostics)).
		Msg("Workspace built")
	return ws, nil
}

func mapCandidates(cfg *config.Engine, snap *snapshot.Snapshot, refs *links.Resolver) ([]source.Candidate, error) {
	out := make([]source.Candidate, 0, len(snap.Issues)+len(snap.WorkItems))
	keep := func(c source.Candidate) {
		if moved := refs.Redirect(c.ID); moved != c.ID {
			log.Debug().Str("item", c.ID).Str("movedTo", moved).Msg("Skipping transferred item")
			return
		}
		out = append(out, c)
	}

	for _, dto := range snap.Issues {
		origin := strings.ToLower(dto.Owner + "/" + dto.Repo)
		c, err := github.MapIssue(dto, refs, cfg.CandidateProducts(origin))
		if err != nil {
			return nil, err
		}
		keep(c)
	}
	for _, dto := range snap.WorkItems {
		origin := strings.ToLower(dto.Org + "/" + dto.Project)
		c, err := azdo.MapWorkItem(dto, refs, cfg.CandidateProducts(origin))
		if err != nil {
			return nil, err
		}
		keep(c)
	}
	return out, nil
}

func buildItem(c source.Candidate, r *history.Reconstructor, users *identity.Resolver, cfg *config.Engine) (*workitem.WorkItem, error) {
	cur, err := r.Current(c.Record)
	if err != nil {
		return nil, err
	}
	changes, err := r.Reconstruct(c.Record)
	if err != nil {
		return nil, err
	}

	return &workitem.WorkItem{
		ID:         c.ID,
		URL:        c.URL,
		Origin:     c.Origin,
		IsPrivate:  c.IsPrivate,
		IsBottomUp: cur.IsBottomUp,
		State:      cur.State,
		Kind:       cur.Kind,
		Title:      cur.Title,
		Priority:   cur.Priority,
		Cost:       cur.Cost,
		CreatedAt:  c.CreatedAt,
		CreatedBy:  users.GetUser(c.CreatedBy, c.Record.Source.System()),
		Milestone:  cur.Milestone,
		Assignees:  cur.Assignees,
		Areas:      c.Areas,
		Teams:      cfg.TeamsFor(c.Areas),
		Changes:    changes,
	}, nil
}

// precompute fills the derived views once so readers never initialise
// anything lazily.
func (w *Workspace) precompute(cfg *config.Engine, parser *milestone.Parser) {
	for _, o := range cfg.Origins {
		if name := cfg.DefaultProduct(o.Name); name != "" {
			w.defaultProducts[strings.ToLower(o.Name)] = parser.Product(name)
		}
	}

	w.products = parser.Products()
	w.milestones = parser.Milestones()
	byProduct := make(map[*workitem.Product][]*workitem.Milestone)
	for _, m := range w.milestones {
		byProduct[m.Product] = append(byProduct[m.Product], m)
	}
	for _, p := range w.products {
		p.Milestones = byProduct[p]
	}

	w.areas = buildAreaTree(w.items)
}

// ID identifies this build in logs.
func (w *Workspace) ID() string { return w.id }

// WorkItems returns every item in natural order.
func (w *Workspace) WorkItems() []*workitem.WorkItem { return slices.Clone(w.items) }

// RootWorkItems returns the items without a parent in natural order.
func (w *Workspace) RootWorkItems() []*workitem.WorkItem { return slices.Clone(w.roots) }

// WorkItem looks an item up by canonical id.
func (w *Workspace) WorkItem(id string) (*workitem.WorkItem, bool) {
	it, ok := w.byID[strings.ToLower(id)]
	return it, ok
}

// Parents returns the parents of the item with the given id.
func (w *Workspace) Parents(id string) []*workitem.WorkItem {
	return slices.Clone(w.parents[strings.ToLower(id)])
}

// Children returns the children of the item with the given id.
func (w *Workspace) Children(id string) []*workitem.WorkItem {
	return slices.Clone(w.children[strings.ToLower(id)])
}

// AreaNodes returns the top level of the area tree.
func (w *Workspace) AreaNodes() []*AreaNode { return slices.Clone(w.areas) }

// Users returns every user seen during the build.
func (w *Workspace) Users() []*workitem.User { return slices.Clone(w.users) }

// Products returns every known product sorted by name.
func (w *Workspace) Products() []*workitem.Product { return slices.Clone(w.products) }

// Product looks a product up by name, ignoring case.
func (w *Workspace) Product(name string) (*workitem.Product, bool) {
	for _, p := range w.products {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

// Milestones returns every milestone sorted by product, then version.
func (w *Workspace) Milestones() []*workitem.Milestone { return slices.Clone(w.milestones) }

// Diagnostics returns the dangling-link and cycle reports.
func (w *Workspace) Diagnostics() []graph.Diagnostic { return slices.Clone(w.diagnostics) }

// DefaultProduct returns the configured product for the item's origin, or nil.
func (w *Workspace) DefaultProduct(it *workitem.WorkItem) *workitem.Product {
	return w.defaultProducts[strings.ToLower(it.Origin)]
}
