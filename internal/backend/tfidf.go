package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/tsukimori/sakuin/internal/analyzer"
	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/suggestion"
)

func init() {
	Register("tfidf", newTFIDF)
}

const tfidfModelFormat = "tfidf/v1"

// tfidfModel is the serializable learned state: per-subject term counts.
// IDF weights are derived from subject frequencies at suggest time.
type tfidfModel struct {
	TrainedDocs  int                       `json:"trained_docs"`
	SubjectTerms map[string]map[string]int `json:"subject_terms"`
}

// TFIDF is the statistical term-matching backend: each subject accumulates
// a term centroid from its training documents, and suggestions are ranked
// by cosine similarity between the document's TF-IDF vector and each
// subject centroid. Supports incremental learning (counts accumulate).
type TFIDF struct {
	base
	analyzer analyzer.Analyzer
	model    tfidfModel
}

var _ Snapshotter = (*TFIDF)(nil)

func newTFIDF(cfg Config, deps Deps) (Backend, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("backend %q: tfidf requires an analyzer", cfg.ID)
	}
	return &TFIDF{
		base:     newBase(cfg.ID, cfg.Kind),
		analyzer: deps.Analyzer,
		model:    tfidfModel{SubjectTerms: make(map[string]map[string]int)},
	}, nil
}

// Learn accumulates term counts per gold subject. With incremental=false
// the model is rebuilt from the given documents only.
func (t *TFIDF) Learn(ctx context.Context, docs []corpus.Document, incremental bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !incremental {
		t.model = tfidfModel{SubjectTerms: make(map[string]map[string]int)}
		t.trained = false
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !doc.HasSubjects() {
			continue
		}
		counts := analyzer.CountTokens(t.analyzer, doc.Text)
		if len(counts) == 0 {
			continue
		}
		for _, subj := range doc.Subjects {
			terms := t.model.SubjectTerms[subj]
			if terms == nil {
				terms = make(map[string]int)
				t.model.SubjectTerms[subj] = terms
			}
			for tok, n := range counts {
				terms[tok] += n
			}
		}
		t.model.TrainedDocs++
	}
	if len(t.model.SubjectTerms) > 0 {
		t.markTrained()
	}
	return nil
}

// Suggest ranks subjects by cosine similarity of TF-IDF vectors.
func (t *TFIDF) Suggest(ctx context.Context, text string) (suggestion.Result, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.trained {
		return nil, &NotTrainedError{BackendID: t.id}
	}
	docCounts := analyzer.CountTokens(t.analyzer, text)
	if len(docCounts) == 0 {
		return suggestion.Result{}, nil
	}

	idf := t.inverseSubjectFrequency()
	docVec := make(map[string]float64, len(docCounts))
	var docNorm float64
	for tok, n := range docCounts {
		w := float64(n) * idf[tok]
		if w == 0 {
			continue
		}
		docVec[tok] = w
		docNorm += w * w
	}
	if docNorm == 0 {
		return suggestion.Result{}, nil
	}
	docNorm = math.Sqrt(docNorm)

	scores := make(map[string]float64)
	i := 0
	for subj, terms := range t.model.SubjectTerms {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i++
		var dot, norm float64
		for tok, n := range terms {
			w := float64(n) * idf[tok]
			norm += w * w
			if dw, ok := docVec[tok]; ok {
				dot += w * dw
			}
		}
		if dot == 0 || norm == 0 {
			continue
		}
		scores[subj] = dot / (docNorm * math.Sqrt(norm))
	}
	return suggestion.Limit(suggestion.FromMap(scores), maxCandidates, 0), nil
}

// inverseSubjectFrequency computes idf(term) = ln(1 + S/sf) over subjects.
// Terms unseen in training get idf 0 and drop out of the document vector.
func (t *TFIDF) inverseSubjectFrequency() map[string]float64 {
	sf := make(map[string]int)
	for _, terms := range t.model.SubjectTerms {
		for tok := range terms {
			sf[tok]++
		}
	}
	total := float64(len(t.model.SubjectTerms))
	idf := make(map[string]float64, len(sf))
	for tok, n := range sf {
		idf[tok] = math.Log(1 + total/float64(n))
	}
	return idf
}

// Snapshot serializes the model for the artifact store.
func (t *TFIDF) Snapshot() (string, []byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	blob, err := json.Marshal(t.model)
	if err != nil {
		return "", nil, fmt.Errorf("snapshot tfidf model: %w", err)
	}
	return tfidfModelFormat, blob, nil
}

// Restore loads a previously snapshotted model.
func (t *TFIDF) Restore(format string, blob []byte) error {
	if format != tfidfModelFormat {
		return fmt.Errorf("backend %q: unsupported model format %q", t.id, format)
	}
	var model tfidfModel
	if err := json.Unmarshal(blob, &model); err != nil {
		return fmt.Errorf("restore tfidf model: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.model = model
	if model.SubjectTerms == nil {
		t.model.SubjectTerms = make(map[string]map[string]int)
	}
	t.trained = len(t.model.SubjectTerms) > 0
	return nil
}
