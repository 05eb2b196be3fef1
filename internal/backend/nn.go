package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/embedding"
	"github.com/tsukimori/sakuin/internal/suggestion"
)

func init() {
	Register("nn", newNearestNeighbor)
}

const nnModelFormat = "nn-centroids/v1"

// nnModel holds one embedding centroid per subject, built from training
// documents. Centroids are running means, so incremental learning folds
// new vectors in without discarding prior state.
type nnModel struct {
	Centroids map[string]*nnCentroid `json:"centroids"`
}

type nnCentroid struct {
	Vector []float32 `json:"vector"`
	Count  int       `json:"count"`
}

// NearestNeighbor is the embedding matcher backend: it embeds the document
// text and ranks subjects by cosine similarity to their centroid
// embeddings. Requires a provisioned embedder; without one it reports
// UnavailableError so the ensemble can skip it rather than abort.
type NearestNeighbor struct {
	base
	embedder embedding.Embedder
	model    nnModel
}

var _ Snapshotter = (*NearestNeighbor)(nil)

func newNearestNeighbor(cfg Config, deps Deps) (Backend, error) {
	return &NearestNeighbor{
		base:     newBase(cfg.ID, cfg.Kind),
		embedder: deps.Embedder,
		model:    nnModel{Centroids: make(map[string]*nnCentroid)},
	}, nil
}

// Learn embeds each labeled document and folds the vector into the
// centroid of every gold subject.
func (n *NearestNeighbor) Learn(ctx context.Context, docs []corpus.Document, incremental bool) error {
	if n.embedder == nil {
		return &UnavailableError{BackendID: n.id, Reason: "embedding model not provisioned"}
	}

	// Embed outside the model lock; inference is the slow part.
	texts := make([]string, 0, len(docs))
	labeled := make([]corpus.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.HasSubjects() {
			texts = append(texts, doc.Text)
			labeled = append(labeled, doc)
		}
	}
	vectors, err := n.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return &UnavailableError{BackendID: n.id, Reason: "embedding failed", Err: err}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !incremental {
		n.model = nnModel{Centroids: make(map[string]*nnCentroid)}
		n.trained = false
	}
	for i, doc := range labeled {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, subj := range doc.Subjects {
			c := n.model.Centroids[subj]
			if c == nil {
				c = &nnCentroid{Vector: make([]float32, len(vectors[i]))}
				n.model.Centroids[subj] = c
			}
			// Running mean update.
			c.Count++
			inv := float32(1) / float32(c.Count)
			for j, v := range vectors[i] {
				c.Vector[j] += (v - c.Vector[j]) * inv
			}
		}
	}
	if len(n.model.Centroids) > 0 {
		n.markTrained()
	}
	return nil
}

// Suggest embeds the text and ranks subjects by centroid cosine
// similarity, clamped to [0,1].
func (n *NearestNeighbor) Suggest(ctx context.Context, text string) (suggestion.Result, error) {
	if n.embedder == nil {
		return nil, &UnavailableError{BackendID: n.id, Reason: "embedding model not provisioned"}
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.trained {
		return nil, &NotTrainedError{BackendID: n.id}
	}

	vec, err := n.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &UnavailableError{BackendID: n.id, Reason: "embedding failed", Err: err}
	}

	scores := make(map[string]float64)
	for subj, c := range n.model.Centroids {
		sim := cosine(vec, c.Vector)
		if sim > 0 {
			scores[subj] = sim
		}
	}
	return suggestion.Limit(suggestion.FromMap(scores), maxCandidates, 0), nil
}

// cosine returns the cosine similarity of a and b, or 0 for mismatched or
// zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Snapshot serializes the centroids for the artifact store.
func (n *NearestNeighbor) Snapshot() (string, []byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	blob, err := json.Marshal(n.model)
	if err != nil {
		return "", nil, fmt.Errorf("snapshot nn model: %w", err)
	}
	return nnModelFormat, blob, nil
}

// Restore loads previously snapshotted centroids.
func (n *NearestNeighbor) Restore(format string, blob []byte) error {
	if format != nnModelFormat {
		return fmt.Errorf("backend %q: unsupported model format %q", n.id, format)
	}
	var model nnModel
	if err := json.Unmarshal(blob, &model); err != nil {
		return fmt.Errorf("restore nn model: %w", err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if model.Centroids == nil {
		model.Centroids = make(map[string]*nnCentroid)
	}
	n.model = model
	n.trained = len(n.model.Centroids) > 0
	return nil
}
