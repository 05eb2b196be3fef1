package backend

import (
	"context"
	"testing"

	"github.com/tsukimori/sakuin/internal/corpus"
)

const (
	subjArch = "http://ex.org/arch"
	subjHist = "http://ex.org/hist"
)

func trainDocs() []corpus.Document {
	return []corpus.Document{
		{Text: "excavation pottery stratigraphy excavation artifacts", Subjects: []string{subjArch}},
		{Text: "pottery shards bronze artifacts excavation", Subjects: []string{subjArch}},
		{Text: "medieval kingdoms dynasty chronicles warfare", Subjects: []string{subjHist}},
		{Text: "dynasty succession chronicles treaties", Subjects: []string{subjHist}},
	}
}

func TestTFIDFLearnAndSuggest(t *testing.T) {
	be, err := New(Config{ID: "t1", Kind: "tfidf"}, testDeps(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if be.IsTrained() {
		t.Error("should start untrained")
	}
	if err := be.Learn(ctx, trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if !be.IsTrained() {
		t.Fatal("should be trained after learn")
	}

	res, err := be.Suggest(ctx, "an excavation uncovered pottery artifacts")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(res) == 0 {
		t.Fatal("expected suggestions")
	}
	if res[0].SubjectID != subjArch {
		t.Errorf("archaeology should rank first, got %s", res[0].SubjectID)
	}
	for _, s := range res {
		if s.Score < 0 || s.Score > 1 {
			t.Errorf("cosine score out of [0,1]: %f", s.Score)
		}
	}
}

func TestTFIDFIncrementalKeepsPriorLearning(t *testing.T) {
	be, _ := New(Config{ID: "t1", Kind: "tfidf"}, testDeps(t))
	ctx := context.Background()
	if err := be.Learn(ctx, trainDocs()[:2], false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if err := be.Learn(ctx, trainDocs()[2:], true); err != nil {
		t.Fatalf("incremental learn: %v", err)
	}
	res, err := be.Suggest(ctx, "dynasty chronicles")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	found := false
	for _, s := range res {
		if s.SubjectID == subjHist {
			found = true
		}
	}
	if !found {
		t.Error("incrementally learned subject missing from suggestions")
	}

	// A full retrain replaces everything learned so far.
	if err := be.Learn(ctx, trainDocs()[:2], false); err != nil {
		t.Fatalf("full relearn: %v", err)
	}
	res, _ = be.Suggest(ctx, "dynasty chronicles")
	for _, s := range res {
		if s.SubjectID == subjHist {
			t.Error("full retrain should discard the history subject")
		}
	}
}

func TestTFIDFSnapshotRoundTrip(t *testing.T) {
	deps := testDeps(t)
	be, _ := New(Config{ID: "t1", Kind: "tfidf"}, deps)
	ctx := context.Background()
	if err := be.Learn(ctx, trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	format, blob, err := be.(Snapshotter).Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if format == "" || len(blob) == 0 {
		t.Fatal("snapshot should produce a format tag and a blob")
	}

	restored, _ := New(Config{ID: "t1", Kind: "tfidf"}, deps)
	if err := restored.(Snapshotter).Restore(format, blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.IsTrained() {
		t.Fatal("restored backend should be trained")
	}
	want, _ := be.Suggest(ctx, "excavation pottery")
	got, err := restored.Suggest(ctx, "excavation pottery")
	if err != nil {
		t.Fatalf("suggest after restore: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("restored model differs: %d vs %d suggestions", len(got), len(want))
	}
	for i := range got {
		if got[i].SubjectID != want[i].SubjectID {
			t.Errorf("entry %d differs: %s vs %s", i, got[i].SubjectID, want[i].SubjectID)
		}
	}
}

func TestTFIDFRestoreBadFormat(t *testing.T) {
	be, _ := New(Config{ID: "t1", Kind: "tfidf"}, testDeps(t))
	if err := be.(Snapshotter).Restore("other/v9", []byte("{}")); err == nil {
		t.Error("restore should reject unknown formats")
	}
}

func TestTFIDFEmptyText(t *testing.T) {
	be, _ := New(Config{ID: "t1", Kind: "tfidf"}, testDeps(t))
	ctx := context.Background()
	if err := be.Learn(ctx, trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	res, err := be.Suggest(ctx, "   ")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("empty text should produce no suggestions, got %d", len(res))
	}
}
