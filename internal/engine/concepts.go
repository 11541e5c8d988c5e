package engine

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed data/concepts.yaml
var defaultConceptsYAML []byte

// minContainedTermLen keeps very short terms ("a", "my") from matching every
// member that happens to contain them.
const minContainedTermLen = 3

// ConceptGroup is an immutable set of interchangeable terms.
type ConceptGroup struct {
	Name  string
	Terms []string
}

// ConceptTable expands query terms with their synonym groups.
// It is built once at startup and never mutated, so it is safe for concurrent use.
type ConceptTable struct {
	groups []ConceptGroup
}

type conceptFile struct {
	Groups map[string][]string `yaml:"groups"`
}

// DefaultConcepts returns the built-in concept table.
func DefaultConcepts() *ConceptTable {
	t, err := ParseConcepts(defaultConceptsYAML)
	if err != nil {
		panic(fmt.Sprintf("engine: built-in concept table is invalid: %v", err))
	}
	return t
}

// LoadConcepts reads a concept table from a YAML file. An empty path returns the built-in table.
func LoadConcepts(path string) (*ConceptTable, error) {
	if path == "" {
		return DefaultConcepts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read concepts file: %w", err)
	}
	return ParseConcepts(data)
}

// ParseConcepts builds a table from YAML of the form `groups: {name: [term, ...]}`.
// Terms are lower-cased and trimmed; empty groups are rejected.
func ParseConcepts(data []byte) (*ConceptTable, error) {
	var f conceptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse concepts: %w", err)
	}

	names := make([]string, 0, len(f.Groups))
	for name := range f.Groups {
		names = append(names, name)
	}
	sort.Strings(names)

	t := &ConceptTable{}
	for _, name := range names {
		var terms []string
		for _, term := range f.Groups[name] {
			if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
				terms = append(terms, term)
			}
		}
		if len(terms) == 0 {
			return nil, fmt.Errorf("concept group %q has no terms", name)
		}
		t.groups = append(t.groups, ConceptGroup{Name: name, Terms: terms})
	}
	return t, nil
}

// Groups returns the number of concept groups.
func (t *ConceptTable) Groups() int {
	return len(t.groups)
}

// Expand returns the sorted set of search terms for a query: the lower-cased
// query, each of its words longer than two characters, and every member of each
// group that the query matches. A query matches a group when it contains a
// member or a member contains it, compared word by word so that "car" never
// matches "scarf". A word also matches its plural ("key", "keys").
func (t *ConceptTable) Expand(term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []string{}
	}

	set := map[string]struct{}{term: {}}
	for _, word := range strings.Fields(term) {
		word = strings.TrimFunc(word, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if len([]rune(word)) > 2 {
			set[word] = struct{}{}
		}
	}

	for _, g := range t.groups {
		if g.matches(term) {
			for _, member := range g.Terms {
				set[member] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (g ConceptGroup) matches(term string) bool {
	termWords := splitWords(term)
	for _, member := range g.Terms {
		memberWords := splitWords(member)
		if containsWords(termWords, memberWords) {
			return true
		}
		if len(term) >= minContainedTermLen && containsWords(memberWords, termWords) {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
}

// containsWords reports whether needle occurs as a contiguous run of whole
// words in hay.
func containsWords(hay, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(hay) {
		return false
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, w := range needle {
			if !sameWord(hay[i+j], w) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func sameWord(a, b string) bool {
	if len(a) < len(b) {
		a, b = b, a
	}
	return a == b || a == b+"s" || a == b+"es"
}
