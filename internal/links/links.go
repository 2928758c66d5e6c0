// Package links turns free-text references between work items into canonical
// ids and follows the transfer map for items that moved.
package links

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// GitHubID is the canonical id of a GitHub issue.
func GitHubID(owner, repo string, number int) string {
	return strings.ToLower(owner) + "/" + strings.ToLower(repo) + "#" + strconv.Itoa(number)
}

// AzureID is the canonical id of an Azure DevOps work item. Work item numbers
// are unique per organization.
func AzureID(org string, number int) string {
	return strings.ToLower(org) + "#" + strconv.Itoa(number)
}

var (
	qualifiedRef = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)#(\d+)$`)
	relativeRef  = regexp.MustCompile(`^(?:GH-|#)(\d+)$`)
	boardsRef    = regexp.MustCompile(`^(?i:AB)#(\d+)$`)
	githubURL    = regexp.MustCompile(`^https?://github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)/(?:issues|pull)/(\d+)(?:[/?#].*)?$`)
	azureURL     = regexp.MustCompile(`^https?://dev\.azure\.com/([A-Za-z0-9_.-]+)/.*?(?:_workitems/edit|_apis/wit/workItems)/(\d+)(?:[/?#].*)?$`)
	legacyURL    = regexp.MustCompile(`^https?://([A-Za-z0-9_-]+)\.visualstudio\.com/.*?(?:_workitems/edit|_apis/wit/workItems)/(\d+)(?:[/?#].*)?$`)

	taskListItem = regexp.MustCompile(`^\s*[-*+]\s+\[[ xX]\]\s+(\S+)`)
)

// Resolver resolves references and applies the transfer map.
type Resolver struct {
	azureOrg  string
	transfers map[string]string
}

// NewResolver creates a resolver. azureOrg is the organization "AB#N"
// references point to; transfers maps an old canonical id to its new one.
func NewResolver(azureOrg string, transfers map[string]string) *Resolver {
	r := &Resolver{
		azureOrg:  strings.ToLower(azureOrg),
		transfers: make(map[string]string, len(transfers)),
	}
	for from, to := range transfers {
		r.transfers[strings.ToLower(from)] = strings.ToLower(to)
	}
	return r
}

// Resolve maps reference text to a canonical id. origin is the "owner/repo" of
// the referencing GitHub issue and anchors relative "#N" references; pass ""
// when there is none.
func (r *Resolver) Resolve(ref, origin string) (string, bool) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimRight(ref, ".,;:)")

	var id string
	switch {
	case qualifiedRef.MatchString(ref):
		m := qualifiedRef.FindStringSubmatch(ref)
		id = GitHubID(m[1], m[2], atoi(m[3]))
	case boardsRef.MatchString(ref):
		if r.azureOrg == "" {
			return "", false
		}
		id = AzureID(r.azureOrg, atoi(boardsRef.FindStringSubmatch(ref)[1]))
	case relativeRef.MatchString(ref):
		owner, repo, ok := strings.Cut(origin, "/")
		if !ok {
			return "", false
		}
		id = GitHubID(owner, repo, atoi(relativeRef.FindStringSubmatch(ref)[1]))
	case githubURL.MatchString(ref):
		m := githubURL.FindStringSubmatch(ref)
		id = GitHubID(m[1], m[2], atoi(m[3]))
	case azureURL.MatchString(ref):
		m := azureURL.FindStringSubmatch(ref)
		id = AzureID(m[1], atoi(m[2]))
	case legacyURL.MatchString(ref):
		m := legacyURL.FindStringSubmatch(ref)
		id = AzureID(m[1], atoi(m[2]))
	default:
		return "", false
	}
	return r.Redirect(id), true
}

// Redirect follows the transfer map until it reaches an id that did not move.
// A loop in the map stops at the last id before it repeats.
func (r *Resolver) Redirect(id string) string {
	seen := map[string]bool{id: true}
	for {
		next, ok := r.transfers[id]
		if !ok || seen[next] {
			if ok {
				log.Warn().Str("id", id).Str("next", next).Msg("Transfer map contains a loop")
			}
			return id
		}
		seen[next] = true
		id = next
	}
}

// TaskListReferences returns the resolved ids of every task-list entry in a
// Markdown body, in order of appearance and without duplicates.
func (r *Resolver) TaskListReferences(body, origin string) []string {
	var out []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := taskListItem.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		id, ok := r.Resolve(m[1], origin)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
