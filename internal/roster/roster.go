// Package roster loads the collaborator directory the export pipeline uses
// to resolve user ids to display names and departments, and to translate
// department/name filters into scope id lists.
package roster

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/MateusSouzaG/bitrix-exporter/internal/domain"
)

// rosterFile is the on-disk YAML layout.
type rosterFile struct {
	Collaborators []domain.Collaborator `yaml:"collaborators"`
}

// Roster is the in-memory collaborator directory. Safe for concurrent
// readers; Reload swaps the whole map under the write lock.
type Roster struct {
	path string

	mu   sync.RWMutex
	byID map[int]domain.Collaborator
}

// Load reads the roster YAML file at path.
func Load(path string) (*Roster, error) {
	r := &Roster{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the roster file, replacing the in-memory directory.
func (r *Roster) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading roster: %w", err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing roster: %w", err)
	}

	byID := make(map[int]domain.Collaborator, len(file.Collaborators))
	for _, c := range file.Collaborators {
		if c.ID == 0 || c.Name == "" {
			log.Printf("roster: skipping entry with missing id or name: %+v", c)
			continue
		}
		c.Department = strings.TrimSpace(c.Department)
		byID[c.ID] = c
	}

	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()

	log.Printf("roster loaded: %d collaborator(s) from %s", len(byID), r.path)
	return nil
}

// Lookup resolves one collaborator by id.
func (r *Roster) Lookup(id int) (domain.Collaborator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// All returns every collaborator, ordered by id.
func (r *Roster) All() []domain.Collaborator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Collaborator, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Departments returns the distinct department labels, upper-cased and
// sorted.
func (r *Roster) Departments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range r.byID {
		if c.Department != "" {
			seen[strings.ToUpper(c.Department)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ScopeIDs resolves export filters to a scope of collaborator ids.
// Priority: name substring > department > everyone. The name match is
// case-insensitive and accent-folded, so "quezia" finds "Quézia".
func (r *Roster) ScopeIDs(department, nameSubstring string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []int
	switch {
	case strings.TrimSpace(nameSubstring) != "":
		needle := foldForMatch(strings.TrimSpace(nameSubstring))
		for id, c := range r.byID {
			if strings.Contains(foldForMatch(c.Name), needle) {
				ids = append(ids, id)
			}
		}
		log.Printf("name filter %q: %d collaborator(s) in scope", nameSubstring, len(ids))

	case strings.TrimSpace(department) != "":
		want := strings.ToUpper(strings.TrimSpace(department))
		for id, c := range r.byID {
			if strings.ToUpper(c.Department) == want {
				ids = append(ids, id)
			}
		}
		log.Printf("department filter %q: %d collaborator(s) in scope", department, len(ids))

	default:
		for id := range r.byID {
			ids = append(ids, id)
		}
		log.Printf("no scope filters: using all %d collaborator(s)", len(ids))
	}

	sort.Ints(ids)
	return ids
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldForMatch lowers and strips combining marks so accented and plain
// spellings of the same name compare equal.
func foldForMatch(s string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}
