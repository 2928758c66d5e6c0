// Package milestone parses free-form version and milestone strings and interns
// the resulting products and milestones.
package milestone

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"workgraph/internal/workitem"

	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidPattern is returned when a configured pattern does not compile or
	// lacks a version group.
	ErrInvalidPattern = errors.New("invalid milestone pattern")
	// ErrInvalidRange is returned for an unparseable version range bound.
	ErrInvalidRange = errors.New("invalid version range")
)

// Capture group names understood in milestone patterns.
const (
	GroupProduct      = "product"
	GroupVersion      = "version"
	GroupBand         = "band"
	GroupSuffixName   = "suffixName"
	GroupSuffixNumber = "suffixNumber"
)

// VersionRange maps an inclusive numeric version range to a product.
type VersionRange struct {
	Product string `mapstructure:"product" yaml:"product"`
	Min     string `mapstructure:"min" yaml:"min"`
	Max     string `mapstructure:"max" yaml:"max"`
}

// Release is a known shipping date for a product version.
type Release struct {
	Product string    `mapstructure:"product" yaml:"product"`
	Version string    `mapstructure:"version" yaml:"version"`
	Date    time.Time `mapstructure:"date" yaml:"date"`
}

// Config drives milestone resolution.
type Config struct {
	Patterns       []string          `mapstructure:"patterns"`
	Products       []string          `mapstructure:"products"`
	ProductAliases map[string]string `mapstructure:"product_aliases"`
	SuffixAliases  map[string]string `mapstructure:"suffix_aliases"`
	VersionRanges  []VersionRange    `mapstructure:"version_ranges"`
	Releases       []Release         `mapstructure:"releases"`
}

type versionRange struct {
	product  string
	min, max workitem.Version
}

// Parser resolves milestone text to interned milestones. It is the only place
// products and milestones are created, so equal milestones share one pointer.
// Safe for concurrent use.
type Parser struct {
	patterns       []*regexp.Regexp
	productAliases map[string]string
	suffixAliases  map[string]string
	known          map[string]string // lower-case name -> canonical name
	ranges         []versionRange
	releases       map[string]time.Time

	mu         sync.Mutex
	products   map[string]*workitem.Product
	milestones map[string]*workitem.Milestone
}

// NewParser compiles the configured patterns and lookup tables.
func NewParser(cfg Config) (*Parser, error) {
	p := &Parser{
		productAliases: make(map[string]string),
		suffixAliases:  make(map[string]string),
		known:          make(map[string]string),
		releases:       make(map[string]time.Time),
		products:       make(map[string]*workitem.Product),
		milestones:     make(map[string]*workitem.Milestone),
	}

	for _, expr := range cfg.Patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, expr, err)
		}
		if re.SubexpIndex(GroupVersion) < 0 {
			return nil, fmt.Errorf("%w: %q has no %q group", ErrInvalidPattern, expr, GroupVersion)
		}
		p.patterns = append(p.patterns, re)
	}

	// Keys are matched case-insensitively; viper lower-cases map keys anyway.
	for k, v := range cfg.ProductAliases {
		p.productAliases[strings.ToLower(k)] = v
	}
	for k, v := range cfg.SuffixAliases {
		p.suffixAliases[strings.ToLower(k)] = v
	}

	for _, name := range cfg.Products {
		p.addKnown(name)
	}
	for _, r := range cfg.VersionRanges {
		lo, ok := TryParseVersion(r.Min)
		if !ok {
			return nil, fmt.Errorf("%w: min %q for %s", ErrInvalidRange, r.Min, r.Product)
		}
		hi, ok := TryParseVersion(r.Max)
		if !ok {
			return nil, fmt.Errorf("%w: max %q for %s", ErrInvalidRange, r.Max, r.Product)
		}
		p.addKnown(r.Product)
		p.ranges = append(p.ranges, versionRange{product: r.Product, min: lo, max: hi})
	}
	for _, r := range cfg.Releases {
		v, ok := TryParseVersion(r.Version)
		if !ok {
			log.Warn().Str("product", r.Product).Str("version", r.Version).Msg("Skipping release with unparseable version")
			continue
		}
		name := p.canonicalProduct(r.Product)
		p.addKnown(name)
		p.releases[milestoneKey(name, v)] = r.Date
	}

	return p, nil
}

func (p *Parser) addKnown(name string) {
	if name == "" {
		return
	}
	p.known[strings.ToLower(name)] = name
}

func (p *Parser) canonicalProduct(name string) string {
	name = strings.TrimSpace(name)
	if alias, ok := p.productAliases[strings.ToLower(name)]; ok {
		return alias
	}
	return name
}

// KnownProduct returns the canonical spelling of a product name, if known.
func (p *Parser) KnownProduct(name string) (string, bool) {
	c, ok := p.known[strings.ToLower(p.canonicalProduct(name))]
	return c, ok
}

var versionRegex = regexp.MustCompile(`^\s*[vV]?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:\s*[-. ]?\s*([A-Za-z]+)\s*\.?\s*(\d+)?)?\s*$`)

// TryParseVersion parses "major[.minor[.build]][ suffix]". The suffix is kept
// verbatim with whitespace removed, e.g. "16.8 P2" or "6.0-rc1".
func TryParseVersion(text string) (workitem.Version, bool) {
	m := versionRegex.FindStringSubmatch(text)
	if m == nil {
		return workitem.Version{}, false
	}

	var v workitem.Version
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return workitem.Version{}, false
	}
	if m[2] != "" {
		if v.Minor, err = strconv.Atoi(m[2]); err != nil {
			return workitem.Version{}, false
		}
	}
	if m[3] != "" {
		if v.Build, err = strconv.Atoi(m[3]); err != nil {
			return workitem.Version{}, false
		}
	}
	v.Suffix = m[4] + m[5]
	return v, true
}

// ResolveMilestone maps raw milestone text to an interned milestone. It
// returns nil when no pattern yields a version or no product can be
// determined; callers treat that as "no milestone".
func (p *Parser) ResolveMilestone(raw string, candidates []string) *workitem.Milestone {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	for _, re := range p.patterns {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		group := func(name string) string {
			if i := re.SubexpIndex(name); i >= 0 {
				return strings.TrimSpace(m[i])
			}
			return ""
		}

		versionText := group(GroupVersion)
		v, ok := TryParseVersion(versionText)
		if !ok || v.Suffix != "" {
			continue
		}

		if band := group(GroupBand); band != "" {
			if strings.Count(versionText, ".") >= 2 {
				return nil
			}
			b, err := strconv.Atoi(strings.ReplaceAll(strings.ToLower(band), "x", "0"))
			if err != nil {
				return nil
			}
			v.Build = b
		}

		if name := group(GroupSuffixName); name != "" {
			if alias, ok := p.suffixAliases[strings.ToLower(name)]; ok {
				name = alias
			}
			v.Suffix = name + group(GroupSuffixNumber)
		}

		product, ok := p.resolveProduct(group(GroupProduct), v, candidates)
		if !ok {
			return nil
		}
		return p.intern(product, v)
	}

	return nil
}

func (p *Parser) resolveProduct(text string, v workitem.Version, candidates []string) (string, bool) {
	if text != "" {
		return p.KnownProduct(text)
	}

	base := workitem.Version{Major: v.Major, Minor: v.Minor, Build: v.Build}
	for _, r := range p.ranges {
		if base.Compare(r.min) >= 0 && base.Compare(r.max) <= 0 {
			return r.product, true
		}
	}

	if len(candidates) == 1 {
		if name, ok := p.KnownProduct(candidates[0]); ok {
			return name, true
		}
		return p.canonicalProduct(candidates[0]), true
	}
	return "", false
}

// Product returns the interned product with the given name.
func (p *Parser) Product(name string) *workitem.Product {
	if c, ok := p.KnownProduct(name); ok {
		name = c
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.productLocked(name)
}

func (p *Parser) productLocked(name string) *workitem.Product {
	key := strings.ToLower(name)
	if prod, ok := p.products[key]; ok {
		return prod
	}
	prod := &workitem.Product{Name: name}
	p.products[key] = prod
	return prod
}

// Milestone interns a milestone for an already resolved product and version.
func (p *Parser) Milestone(product string, v workitem.Version) *workitem.Milestone {
	if c, ok := p.KnownProduct(product); ok {
		product = c
	}
	return p.intern(product, v)
}

func (p *Parser) intern(product string, v workitem.Version) *workitem.Milestone {
	key := milestoneKey(product, v)

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.milestones[key]; ok {
		return m
	}
	m := &workitem.Milestone{
		Product: p.productLocked(product),
		Version: v,
	}
	if d, ok := p.releases[key]; ok {
		m.ReleaseDate = &d
	}
	p.milestones[key] = m
	return m
}

// InternReleases creates a milestone for every configured release so that
// roadmap columns exist even when no item targets them yet.
func (p *Parser) InternReleases() {
	p.mu.Lock()
	keys := make([]string, 0, len(p.releases))
	for k := range p.releases {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	slices.Sort(keys)
	for _, k := range keys {
		name, text, _ := strings.Cut(k, "|")
		v, ok := TryParseVersion(text)
		if !ok {
			continue
		}
		p.intern(p.known[name], v)
	}
}

// Products returns the interned products sorted by name.
func (p *Parser) Products() []*workitem.Product {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*workitem.Product, 0, len(p.products))
	for _, prod := range p.products {
		out = append(out, prod)
	}
	slices.SortFunc(out, func(a, b *workitem.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Milestones returns the interned milestones sorted by product, then version.
func (p *Parser) Milestones() []*workitem.Milestone {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*workitem.Milestone, 0, len(p.milestones))
	for _, m := range p.milestones {
		out = append(out, m)
	}
	slices.SortFunc(out, workitem.CompareMilestones)
	return out
}

func milestoneKey(product string, v workitem.Version) string {
	return strings.ToLower(product) + "|" + v.String()
}
