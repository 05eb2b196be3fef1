// Package corpus provides labeled document collections for training and
// weight learning: (text, gold subject identifiers) pairs loaded from TSV,
// JSON Lines, or document directories.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Document is one corpus entry: text plus its gold subject identifiers.
// Subjects may be empty for unlabeled documents.
type Document struct {
	Text     string   `json:"text"`
	Subjects []string `json:"subjects,omitempty"`
}

// HasSubjects reports whether the document carries gold subjects.
func (d Document) HasSubjects() bool {
	return len(d.Subjects) > 0
}

// HasGold reports whether any document in docs carries gold subjects, which
// decides whether ensemble weight learning can run after training.
func HasGold(docs []Document) bool {
	for _, d := range docs {
		if d.HasSubjects() {
			return true
		}
	}
	return false
}

// LoadTSV reads a corpus file with one document per line:
// "<text>\t<subject-id> <subject-id> ...". Blank lines are skipped.
func LoadTSV(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		text, subjects, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("corpus %s line %d: expected <text>\\t<subjects>", path, lineNo)
		}
		docs = append(docs, Document{
			Text:     text,
			Subjects: strings.Fields(subjects),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return docs, nil
}

// LoadJSONL reads a corpus file with one JSON document per line, matching
// the Document field names.
func LoadJSONL(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, fmt.Errorf("corpus %s line %d: %w", path, lineNo, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return docs, nil
}

// TextExtractor extracts plain text from a document file. Satisfied by
// extract.Extractor.
type TextExtractor interface {
	Extract(path string) (string, error)
}

// LoadDirectory reads a document-directory corpus: each document file is
// paired with a sidecar "<name>.key" file listing one gold subject
// identifier per line. Files without a sidecar become unlabeled documents.
// Sidecar files themselves are skipped as documents.
func LoadDirectory(dir string, extractor TextExtractor) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".key") {
			return nil
		}
		text, err := extractor.Extract(path)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}
		doc := Document{Text: text}
		keyPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".key"
		if data, err := os.ReadFile(keyPath); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if id := strings.TrimSpace(line); id != "" {
					doc.Subjects = append(doc.Subjects, id)
				}
			}
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus directory: %w", err)
	}
	return docs, nil
}

// Load picks the loader from the path: directories use LoadDirectory,
// ".jsonl"/".ndjson" files use LoadJSONL, everything else uses LoadTSV.
func Load(path string, extractor TextExtractor) ([]Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat corpus: %w", err)
	}
	if info.IsDir() {
		return LoadDirectory(path, extractor)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return LoadJSONL(path)
	default:
		return LoadTSV(path)
	}
}
