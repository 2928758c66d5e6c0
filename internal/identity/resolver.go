// Package identity maps tracker-specific user handles to canonical users.
package identity

import (
	"slices"
	"strings"
	"sync"

	"workgraph/internal/workitem"
)

// System identifies which tracker a handle comes from.
type System int

const (
	GitHub System = iota
	AzureDevOps
)

func (s System) String() string {
	if s == AzureDevOps {
		return "azdo"
	}
	return "github"
}

// Ghost is the handle used for deleted or missing accounts.
const Ghost = "ghost"

// Link is one row of the organisation's cross-reference table.
type Link struct {
	GitHubLogin    string `json:"gitHubLogin"`
	MicrosoftAlias string `json:"microsoftAlias"`
	Name           string `json:"name"`
}

// Resolver interns users. Every lookup for the same handle within one build
// returns the same *workitem.User. Safe for concurrent use.
type Resolver struct {
	byLogin map[string]Link
	byAlias map[string]Link

	mu      sync.Mutex
	users   map[string]*workitem.User // keyed by "login:" or "alias:" + lower-case handle
	ordered []*workitem.User
}

// NewResolver builds a resolver over the given link table. A nil table is valid.
func NewResolver(links []Link) *Resolver {
	r := &Resolver{
		byLogin: make(map[string]Link),
		byAlias: make(map[string]Link),
		users:   make(map[string]*workitem.User),
	}
	for _, l := range links {
		if l.GitHubLogin != "" {
			r.byLogin[strings.ToLower(l.GitHubLogin)] = l
		}
		if l.MicrosoftAlias != "" {
			r.byAlias[strings.ToLower(l.MicrosoftAlias)] = l
		}
	}
	return r
}

// GetUser returns the canonical user for a handle. Empty handles resolve to
// the ghost user.
func (r *Resolver) GetUser(handle string, system System) *workitem.User {
	handle = strings.TrimSpace(handle)
	if system == AzureDevOps {
		handle = NormalizeAzureHandle(handle)
	}
	if handle == "" {
		handle = Ghost
		system = GitHub
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var link Link
	var linked bool
	if system == AzureDevOps {
		link, linked = r.byAlias[strings.ToLower(handle)]
	} else {
		link, linked = r.byLogin[strings.ToLower(handle)]
	}

	if linked {
		// A linked identity is shared by both of its handles.
		if u := r.lookupLocked(link); u != nil {
			return u
		}
		u := &workitem.User{
			DisplayName:    link.Name,
			GitHubLogin:    link.GitHubLogin,
			MicrosoftAlias: link.MicrosoftAlias,
		}
		if u.DisplayName == "" {
			u.DisplayName = handle
		}
		if link.GitHubLogin != "" {
			r.users[loginKey(link.GitHubLogin)] = u
		}
		if link.MicrosoftAlias != "" {
			r.users[aliasKey(link.MicrosoftAlias)] = u
		}
		r.ordered = append(r.ordered, u)
		return u
	}

	key := loginKey(handle)
	if system == AzureDevOps {
		key = aliasKey(handle)
	}
	if u, ok := r.users[key]; ok {
		return u
	}
	u := &workitem.User{DisplayName: handle}
	if system == AzureDevOps {
		u.MicrosoftAlias = handle
	} else {
		u.GitHubLogin = handle
	}
	r.users[key] = u
	r.ordered = append(r.ordered, u)
	return u
}

func (r *Resolver) lookupLocked(l Link) *workitem.User {
	if l.GitHubLogin != "" {
		if u, ok := r.users[loginKey(l.GitHubLogin)]; ok {
			return u
		}
	}
	if l.MicrosoftAlias != "" {
		if u, ok := r.users[aliasKey(l.MicrosoftAlias)]; ok {
			return u
		}
	}
	return nil
}

// Users returns every user handed out so far, sorted by display name then handle.
func (r *Resolver) Users() []*workitem.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := slices.Clone(r.ordered)
	slices.SortFunc(out, func(a, b *workitem.User) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// NormalizeAzureHandle reduces "Jane Doe <janed@contoso.com>" or
// "janed@contoso.com" to "janed".
func NormalizeAzureHandle(handle string) string {
	if i := strings.LastIndexByte(handle, '<'); i >= 0 {
		if j := strings.IndexByte(handle[i:], '>'); j > 0 {
			handle = handle[i+1 : i+j]
		}
	}
	if i := strings.IndexByte(handle, '@'); i >= 0 {
		handle = handle[:i]
	}
	return strings.TrimSpace(handle)
}

func loginKey(h string) string { return "login:" + strings.ToLower(h) }
func aliasKey(h string) string { return "alias:" + strings.ToLower(h) }
