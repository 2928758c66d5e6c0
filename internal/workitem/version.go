package workitem

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Version is a release version such as 16.8 P2 or 6.0.100.
type Version struct {
	Major  int
	Minor  int
	Build  int
	Suffix string // empty for a release build
}

// IsWhole reports whether the version is a major/minor release rather than a
// service band.
func (v Version) IsWhole() bool {
	return v.Build == 0
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d", v.Major, v.Minor)
	if v.Build != 0 {
		s += fmt.Sprintf(".%d", v.Build)
	}
	if v.Suffix != "" {
		s += " " + v.Suffix
	}
	return s
}

// Compare orders versions numerically. At equal numbers a pre-release suffix
// sorts before the release.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Build, o.Build); c != 0 {
		return c
	}
	return compareSuffix(v.Suffix, o.Suffix)
}

func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func compareSuffix(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	pa, na, okA := splitSuffix(a)
	pb, nb, okB := splitSuffix(b)
	if okA && okB && strings.EqualFold(pa, pb) {
		return cmp.Compare(na, nb)
	}
	return strings.Compare(strings.ToUpper(a), strings.ToUpper(b))
}

// splitSuffix separates "P12" into ("P", 12). ok is false when there is no
// trailing number.
func splitSuffix(s string) (prefix string, n int, ok bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}

// Product is a named grouping of milestones.
type Product struct {
	Name       string
	Milestones []*Milestone // sorted by version, filled once the workspace is built
}

func (p *Product) String() string {
	if p == nil {
		return ""
	}
	return p.Name
}

// Milestone is a (Product, Version) release target. Instances are interned by
// the milestone parser, so pointer equality is milestone equality.
type Milestone struct {
	Product     *Product
	Version     Version
	ReleaseDate *time.Time
}

func (m *Milestone) String() string {
	if m == nil {
		return ""
	}
	return m.Product.Name + " " + m.Version.String()
}

func (m *Milestone) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// CompareMilestones orders by product name, then version.
func CompareMilestones(a, b *Milestone) int {
	if c := strings.Compare(a.Product.Name, b.Product.Name); c != 0 {
		return c
	}
	return a.Version.Compare(b.Version)
}
