// Package vocab provides the read-only subject index: a mapping from stable
// subject identifiers (URIs) to display labels, loaded from a TSV file.
package vocab

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Subject is one vocabulary entry.
type Subject struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Index is an immutable subject index. It is safe for concurrent readers
// without locking because it is never mutated after construction.
type Index struct {
	ids    []string
	labels map[string]string
}

// New builds an index from subjects. Duplicate identifiers keep the first
// label seen.
func New(subjects []Subject) *Index {
	labels := make(map[string]string, len(subjects))
	ids := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if _, ok := labels[s.ID]; ok {
			continue
		}
		labels[s.ID] = s.Label
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return &Index{ids: ids, labels: labels}
}

// Load reads a vocabulary TSV file: one "<identifier>\t<label>" pair per
// line. Blank lines and lines starting with '#' are skipped.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	var subjects []Subject
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, label, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("vocabulary %s line %d: expected <id>\\t<label>", path, lineNo)
		}
		subjects = append(subjects, Subject{ID: strings.TrimSpace(id), Label: strings.TrimSpace(label)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("vocabulary %s contains no subjects", path)
	}
	return New(subjects), nil
}

// Contains reports whether the identifier exists in the vocabulary.
func (ix *Index) Contains(id string) bool {
	_, ok := ix.labels[id]
	return ok
}

// LabelOf returns the display label for the identifier, or "" if unknown.
func (ix *Index) LabelOf(id string) string {
	return ix.labels[id]
}

// IDs returns all subject identifiers in a stable (sorted) order. The
// returned slice is a copy and may be retained by the caller.
func (ix *Index) IDs() []string {
	out := make([]string, len(ix.ids))
	copy(out, ix.ids)
	return out
}

// Len returns the number of subjects.
func (ix *Index) Len() int {
	return len(ix.ids)
}

// Subjects returns all entries in stable identifier order.
func (ix *Index) Subjects() []Subject {
	out := make([]Subject, 0, len(ix.ids))
	for _, id := range ix.ids {
		out = append(out, Subject{ID: id, Label: ix.labels[id]})
	}
	return out
}
