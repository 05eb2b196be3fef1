package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/tsukimori/sakuin/internal/embedding"
)

func nnDeps(t *testing.T) Deps {
	deps := testDeps(t)
	deps.Embedder = embedding.NewMockEmbedder(64)
	return deps
}

func TestNNUnavailableWithoutEmbedder(t *testing.T) {
	be, err := New(Config{ID: "nn1", Kind: "nn"}, testDeps(t))
	if err != nil {
		t.Fatalf("construction should succeed without an embedder: %v", err)
	}
	_, err = be.Suggest(context.Background(), "text")
	var ua *UnavailableError
	if !errors.As(err, &ua) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	err = be.Learn(context.Background(), trainDocs(), false)
	if !errors.As(err, &ua) {
		t.Fatalf("learn should also report unavailable, got %v", err)
	}
}

func TestNNLearnAndSuggest(t *testing.T) {
	be, err := New(Config{ID: "nn1", Kind: "nn"}, nnDeps(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := be.Learn(ctx, trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if !be.IsTrained() {
		t.Fatal("should be trained")
	}

	// The mock embedder is deterministic per text, so a training text
	// embeds onto its own subject centroid.
	res, err := be.Suggest(ctx, "excavation pottery stratigraphy excavation artifacts")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(res) == 0 {
		t.Fatal("expected suggestions")
	}
	if res[0].SubjectID != subjArch {
		t.Errorf("identical text should match its own centroid, got %s", res[0].SubjectID)
	}
	for _, s := range res {
		if s.Score < 0 || s.Score > 1 {
			t.Errorf("score out of [0,1]: %f", s.Score)
		}
	}
}

func TestNNIncrementalCentroids(t *testing.T) {
	be, _ := New(Config{ID: "nn1", Kind: "nn"}, nnDeps(t))
	ctx := context.Background()
	if err := be.Learn(ctx, trainDocs()[:2], false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if err := be.Learn(ctx, trainDocs()[2:], true); err != nil {
		t.Fatalf("incremental learn: %v", err)
	}
	nn := be.(*NearestNeighbor)
	if nn.model.Centroids[subjHist] == nil {
		t.Error("incremental learn should add new centroids")
	}
	if nn.model.Centroids[subjArch] == nil {
		t.Error("incremental learn must keep prior centroids")
	}
	if nn.model.Centroids[subjArch].Count != 2 {
		t.Errorf("centroid count should be 2, got %d", nn.model.Centroids[subjArch].Count)
	}
}

func TestNNSnapshotRoundTrip(t *testing.T) {
	deps := nnDeps(t)
	be, _ := New(Config{ID: "nn1", Kind: "nn"}, deps)
	ctx := context.Background()
	if err := be.Learn(ctx, trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	format, blob, err := be.(Snapshotter).Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	restored, _ := New(Config{ID: "nn1", Kind: "nn"}, deps)
	if err := restored.(Snapshotter).Restore(format, blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.IsTrained() {
		t.Error("restored backend should be trained")
	}
}
