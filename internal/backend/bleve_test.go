package backend

import (
	"context"
	"errors"
	"testing"
)

func TestBleveIncrementalUnsupported(t *testing.T) {
	be, err := New(Config{ID: "bl", Kind: "bleve"}, testDeps(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer be.(*Bleve).Close()

	err = be.Learn(context.Background(), trainDocs(), true)
	var uo *UnsupportedOperationError
	if !errors.As(err, &uo) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
}

func TestBleveLearnAndSuggest(t *testing.T) {
	be, err := New(Config{ID: "bl", Kind: "bleve"}, testDeps(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer be.(*Bleve).Close()
	ctx := context.Background()

	if be.IsTrained() {
		t.Error("fresh index should be untrained")
	}
	if err := be.Learn(ctx, trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if !be.IsTrained() {
		t.Fatal("should be trained after indexing")
	}

	res, err := be.Suggest(ctx, "pottery excavation artifacts")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(res) == 0 {
		t.Fatal("expected suggestions")
	}
	if res[0].SubjectID != subjArch {
		t.Errorf("archaeology training docs should dominate, got %s", res[0].SubjectID)
	}
}

func TestBleveReopenKeepsTraining(t *testing.T) {
	deps := testDeps(t)
	be, err := New(Config{ID: "bl", Kind: "bleve"}, deps)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := be.Learn(context.Background(), trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if err := be.(*Bleve).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A new backend over the same index directory picks the model back up.
	reopened, err := New(Config{ID: "bl", Kind: "bleve"}, deps)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.(*Bleve).Close()
	if !reopened.IsTrained() {
		t.Error("reopened index should report trained")
	}
}

func TestBleveRemoveData(t *testing.T) {
	be, err := New(Config{ID: "bl", Kind: "bleve"}, testDeps(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer be.(*Bleve).Close()
	ctx := context.Background()
	if err := be.Learn(ctx, trainDocs(), false); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if err := be.(*Bleve).RemoveData(); err != nil {
		t.Fatalf("remove data: %v", err)
	}
	if be.IsTrained() {
		t.Error("removing data should return the backend to untrained")
	}
	_, err = be.Suggest(ctx, "pottery")
	var nt *NotTrainedError
	if !errors.As(err, &nt) {
		t.Errorf("expected NotTrainedError after removal, got %v", err)
	}
}
