// Package snapshot stores crawled raw data and hands out consistent,
// immutable snapshots of it to the workspace builder.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"workgraph/internal/azdo"
	"workgraph/internal/github"
	"workgraph/internal/identity"
	"workgraph/internal/links"

	"github.com/rs/zerolog/log"
)

// File names inside a snapshot directory.
const (
	GitHubFile    = "github.jsonl"
	AzureFile     = "azdo.jsonl"
	LinksFile     = "links.jsonl"
	TransfersFile = "transfers.json"
)

// Snapshot is one consistent set of raw data. Slices are sorted by id and
// must not be modified.
type Snapshot struct {
	Issues    []github.IssueDTO
	WorkItems []azdo.WorkItemDTO
	Links     []identity.Link
	Transfers map[string]string
}

// Store accumulates crawled data. Newer records replace older ones with the
// same id. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	issues    map[string]github.IssueDTO
	workItems map[string]azdo.WorkItemDTO
	links     map[string]identity.Link
	transfers map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		issues:    make(map[string]github.IssueDTO),
		workItems: make(map[string]azdo.WorkItemDTO),
		links:     make(map[string]identity.Link),
		transfers: make(map[string]string),
	}
}

func linkKey(l identity.Link) string {
	return strings.ToLower(l.GitHubLogin) + "|" + strings.ToLower(l.MicrosoftAlias)
}

// AddIssues adds or replaces GitHub issues.
func (s *Store) AddIssues(issues ...github.IssueDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range issues {
		s.issues[links.GitHubID(i.Owner, i.Repo, i.Number)] = i
	}
}

// AddWorkItems adds or replaces Azure DevOps work items.
func (s *Store) AddWorkItems(items ...azdo.WorkItemDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range items {
		s.workItems[links.AzureID(w.Org, w.ID)] = w
	}
}

// AddLinks adds or replaces identity cross-reference rows.
func (s *Store) AddLinks(ls ...identity.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range ls {
		s.links[linkKey(l)] = l
	}
}

// AddTransfer records that the item with id from now lives at to.
func (s *Store) AddTransfer(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[from] = to
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Snapshot{
		Issues:    sortedValues(s.issues),
		WorkItems: sortedValues(s.workItems),
		Links:     sortedValues(s.links),
		Transfers: maps.Clone(s.transfers),
	}
}

func sortedValues[T any](m map[string]T) []T {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Load reads a snapshot directory into the store. Missing files are not an
// error; invalid lines are skipped.
func (s *Store) Load(dir string) error {
	issues, err := readJSONL[github.IssueDTO](filepath.Join(dir, GitHubFile))
	if err != nil {
		return err
	}
	workItems, err := readJSONL[azdo.WorkItemDTO](filepath.Join(dir, AzureFile))
	if err != nil {
		return err
	}
	ls, err := readJSONL[identity.Link](filepath.Join(dir, LinksFile))
	if err != nil {
		return err
	}
	transfers, err := readTransfers(filepath.Join(dir, TransfersFile))
	if err != nil {
		return err
	}

	s.AddIssues(issues...)
	s.AddWorkItems(workItems...)
	s.AddLinks(ls...)
	for from, to := range transfers {
		s.AddTransfer(from, to)
	}

	log.Info().
		Str("dir", dir).
		Int("issues", len(issues)).
		Int("workItems", len(workItems)).
		Int("links", len(ls)).
		Int("transfers", len(transfers)).
		Msg("Loaded snapshot")
	return nil
}

// Save writes the store's contents to dir, replacing each file atomically.
func (s *Store) Save(dir string) error {
	snap := s.Snapshot()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := writeJSONL(filepath.Join(dir, GitHubFile), snap.Issues); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, AzureFile), snap.WorkItems); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, LinksFile), snap.Links); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, TransfersFile), func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap.Transfers)
	}); err != nil {
		return err
	}

	log.Info().Str("dir", dir).Int("issues", len(snap.Issues)).Int("workItems", len(snap.WorkItems)).Msg("Snapshot saved")
	return nil
}

func readJSONL[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	var out []T
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Int("line", line).Msg("Skipping invalid JSON line in snapshot")
			continue
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func readTransfers(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

func writeJSONL[T any](path string, items []T) error {
	return writeAtomic(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		for _, v := range items {
			if err := enc.Encode(v); err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}
		}
		return nil
	})
}

// writeAtomic writes to a temp file next to path and renames it into place.
func writeAtomic(path string, fill func(*bufio.Writer) error) error {
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	writer := bufio.NewWriter(file)
	if err := fill(writer); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
