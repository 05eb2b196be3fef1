package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/suggestion"
)

func init() {
	Register("bleve", newBleve)
}

// bleveQueryTokens caps how much of the document text is fed into the
// match query; full books would make the disjunction impractically large.
const bleveQueryTokens = 256

// bleveHits is how many training documents a suggest query retrieves
// before aggregating their subjects.
const bleveHits = 50

// Bleve is the term-matching backend built on a bleve full-text index of
// the training documents. Each training document is indexed with its gold
// subjects stored alongside; at suggest time the document text is run as a
// match query and hit scores are summed per subject. The index lives on
// disk under the project data directory, so training state survives
// restarts without an explicit model blob. Incremental learning is not
// supported: bleve cannot un-count a replaced training set, so the
// coordinator downgrades to full retrains.
type Bleve struct {
	base
	path  string
	index bleve.Index

	// openErr is set when the index could not be opened or created; the
	// backend then reports UnavailableError instead of failing project load.
	openErr error
}

// bleveDoc is the indexed shape of one training document.
type bleveDoc struct {
	Content  string   `json:"content"`
	Subjects []string `json:"subjects"`
}

func newBleve(cfg Config, deps Deps) (Backend, error) {
	if deps.IndexDir == "" {
		return nil, fmt.Errorf("backend %q: bleve requires an index directory", cfg.ID)
	}
	b := &Bleve{
		base: newBase(cfg.ID, cfg.Kind),
		path: filepath.Join(deps.IndexDir, cfg.ID+".bleve"),
	}
	index, err := openOrCreateIndex(b.path)
	if err != nil {
		b.openErr = err
		return b, nil
	}
	b.index = index
	if count, err := index.DocCount(); err == nil && count > 0 {
		b.trained = true
	}
	return b, nil
}

// openOrCreateIndex opens an existing index at path or creates a new one
// with the subject-document mapping.
func openOrCreateIndex(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open bleve index: %w", openErr)
		}
		return index, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	contentMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps query
	// terms aligned with indexed terms across languages.
	contentMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", contentMapping)
	subjectMapping := bleve.NewKeywordFieldMapping()
	subjectMapping.Store = true
	docMapping.AddFieldMappingsAt("subjects", subjectMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return index, nil
}

// Learn rebuilds the index from the given documents. Incremental learning
// is unsupported.
func (b *Bleve) Learn(ctx context.Context, docs []corpus.Document, incremental bool) error {
	if incremental {
		return &UnsupportedOperationError{BackendID: b.id, Operation: "incremental learning"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return &UnavailableError{BackendID: b.id, Reason: "index not provisioned", Err: b.openErr}
	}

	// Full retrain: drop the existing index and rebuild.
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("close bleve index: %w", err)
	}
	if err := os.RemoveAll(b.path); err != nil {
		return fmt.Errorf("remove bleve index: %w", err)
	}
	index, err := openOrCreateIndex(b.path)
	if err != nil {
		b.index = nil
		b.openErr = err
		return &UnavailableError{BackendID: b.id, Reason: "index rebuild failed", Err: err}
	}
	b.index = index
	b.trained = false

	batch := b.index.NewBatch()
	indexed := 0
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !doc.HasSubjects() || strings.TrimSpace(doc.Text) == "" {
			continue
		}
		if err := batch.Index(fmt.Sprintf("doc-%d", i), bleveDoc{Content: doc.Text, Subjects: doc.Subjects}); err != nil {
			return fmt.Errorf("index training document: %w", err)
		}
		indexed++
		if batch.Size() >= 100 {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("commit bleve batch: %w", err)
			}
			batch = b.index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("commit bleve batch: %w", err)
		}
	}
	if indexed > 0 {
		b.markTrained()
	}
	return nil
}

// Suggest queries the index with the document's leading tokens and sums
// hit scores per stored subject.
func (b *Bleve) Suggest(ctx context.Context, text string) (suggestion.Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return nil, &UnavailableError{BackendID: b.id, Reason: "index not provisioned", Err: b.openErr}
	}
	if !b.trained {
		return nil, &NotTrainedError{BackendID: b.id}
	}

	words := strings.Fields(text)
	if len(words) > bleveQueryTokens {
		words = words[:bleveQueryTokens]
	}
	if len(words) == 0 {
		return suggestion.Result{}, nil
	}

	query := bleve.NewMatchQuery(strings.Join(words, " "))
	query.SetField("content")
	req := bleve.NewSearchRequestOptions(query, bleveHits, 0, false)
	req.Fields = []string{"subjects"}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	scores := make(map[string]float64)
	for _, hit := range res.Hits {
		for _, subj := range hitSubjects(hit.Fields["subjects"]) {
			scores[subj] += hit.Score
		}
	}
	return suggestion.Limit(suggestion.FromMap(scores), maxCandidates, 0), nil
}

// hitSubjects unpacks the stored subjects field, which bleve returns as a
// string for single values and []interface{} for multiple.
func hitSubjects(field interface{}) []string {
	switch v := field.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Close releases the underlying index.
func (b *Bleve) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}

// RemoveData deletes the on-disk index, returning the backend to the
// untrained state.
func (b *Bleve) RemoveData() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		if err := b.index.Close(); err != nil {
			return fmt.Errorf("close bleve index: %w", err)
		}
		b.index = nil
	}
	if err := os.RemoveAll(b.path); err != nil {
		return fmt.Errorf("remove bleve index: %w", err)
	}
	index, err := openOrCreateIndex(b.path)
	if err != nil {
		b.openErr = err
		return err
	}
	b.index = index
	b.trained = false
	return nil
}
