package corpus

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.tsv")
	content := "ancient settlements and dig sites\thttp://ex.org/arch http://ex.org/hist\n" +
		"\n" +
		"unlabeled text\t\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	docs, err := LoadTSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if len(docs[0].Subjects) != 2 {
		t.Errorf("expected 2 subjects, got %v", docs[0].Subjects)
	}
	if docs[1].HasSubjects() {
		t.Error("second document should be unlabeled")
	}
}

func TestLoadTSVMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tsv")
	if err := os.WriteFile(path, []byte("no tab separator\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTSV(path); err == nil {
		t.Error("expected error for missing tab")
	}
}

func TestLoadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.jsonl")
	content := `{"text":"medieval trade routes","subjects":["http://ex.org/hist"]}` + "\n" +
		`{"text":"no labels"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	docs, err := LoadJSONL(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Subjects[0] != "http://ex.org/hist" {
		t.Errorf("wrong subject: %v", docs[0].Subjects)
	}
}

type plainExtractor struct{}

func (plainExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "doc1.txt"), []byte("bronze age pottery"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "doc1.key"), []byte("http://ex.org/arch\n\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "doc2.txt"), []byte("no sidecar"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	docs, err := LoadDirectory(dir, plainExtractor{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents (sidecar must not count), got %d", len(docs))
	}
	labeled := 0
	for _, d := range docs {
		if d.HasSubjects() {
			labeled++
			if d.Subjects[0] != "http://ex.org/arch" {
				t.Errorf("wrong subject: %v", d.Subjects)
			}
		}
	}
	if labeled != 1 {
		t.Errorf("expected exactly 1 labeled document, got %d", labeled)
	}
}

func TestHasGold(t *testing.T) {
	if HasGold([]Document{{Text: "a"}, {Text: "b"}}) {
		t.Error("no gold expected")
	}
	if !HasGold([]Document{{Text: "a"}, {Text: "b", Subjects: []string{"s"}}}) {
		t.Error("gold expected")
	}
}
