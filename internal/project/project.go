// Package project binds the pieces of one indexing project together: its
// vocabulary, analyzer, backends, and fusion engine, plus the registry
// that builds projects from configuration and restores persisted models.
package project

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/backend"
	"github.com/tsukimori/sakuin/internal/ensemble"
	"github.com/tsukimori/sakuin/internal/suggestion"
	"github.com/tsukimori/sakuin/internal/vocab"
)

// Project is one configured indexing project. Safe for concurrent use:
// the vocabulary swaps atomically on reload, backends guard their own
// model state, and the engine swaps weight vectors atomically.
type Project struct {
	ID       string
	Name     string
	Language string
	Analyzer string

	backends   []backend.Backend
	backendIDs []string
	engine     *ensemble.Engine
	vocabulary atomic.Pointer[vocab.Index]
	transform  transform
	logger     *zap.Logger
}

// Vocabulary returns the current subject index.
func (p *Project) Vocabulary() *vocab.Index {
	return p.vocabulary.Load()
}

// Backends returns the project's backends in configuration order.
func (p *Project) Backends() []backend.Backend {
	return p.backends
}

// Engine returns the project's fusion engine.
func (p *Project) Engine() *ensemble.Engine {
	return p.engine
}

// Suggest runs the full suggestion pipeline: input transform, backend
// fan-out and fusion, vocabulary subset filtering, and label attachment.
func (p *Project) Suggest(ctx context.Context, text string, opts ensemble.Options) (suggestion.Result, error) {
	v := p.Vocabulary()
	opts.Subset = v
	res, err := p.engine.Suggest(ctx, p.backends, p.transform(text), opts)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Label = v.LabelOf(res[i].SubjectID)
	}
	return res, nil
}

// IsTrained reports whether at least one backend can suggest.
func (p *Project) IsTrained() bool {
	for _, be := range p.backends {
		if be.IsTrained() {
			return true
		}
	}
	return false
}

// ReloadVocabulary swaps in a freshly loaded subject index. Lexicon-based
// backends rebuild their label lexicons; model-based backends keep their
// trained state and rely on subset filtering until retrained.
func (p *Project) ReloadVocabulary(ix *vocab.Index) {
	p.vocabulary.Store(ix)
	for _, be := range p.backends {
		if lex, ok := be.(*backend.Lexical); ok {
			lex.RebuildLexicon(ix)
		}
	}
	p.logger.Info("vocabulary reloaded",
		zap.String("project", p.ID),
		zap.Int("subjects", ix.Len()))
}

// BackendInfo is the dump view of one backend.
type BackendInfo struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Weight  float64 `json:"weight"`
	Trained bool    `json:"trained"`
}

// Info is the introspection view of a project.
type Info struct {
	ProjectID      string        `json:"project_id"`
	Name           string        `json:"name"`
	Language       string        `json:"language"`
	Analyzer       string        `json:"analyzer"`
	VocabularySize int           `json:"vocabulary_size"`
	Backends       []BackendInfo `json:"backends"`
	IsTrained      bool          `json:"is_trained"`
	Calibrated     bool          `json:"calibrated"`
	Modified       *time.Time    `json:"modified,omitempty"`
}

// Dump returns the project's introspection view. modified is the latest
// artifact write from the store; the zero time is omitted.
func (p *Project) Dump(modified time.Time) Info {
	weights := p.engine.CurrentWeights()
	info := Info{
		ProjectID:      p.ID,
		Name:           p.Name,
		Language:       p.Language,
		Analyzer:       p.Analyzer,
		VocabularySize: p.Vocabulary().Len(),
		IsTrained:      p.IsTrained(),
		Calibrated:     weights.Calibrated,
	}
	for _, be := range p.backends {
		info.Backends = append(info.Backends, BackendInfo{
			ID:      be.ID(),
			Kind:    be.Kind(),
			Weight:  weights.WeightOf(be.ID()),
			Trained: be.IsTrained(),
		})
	}
	if !modified.IsZero() {
		info.Modified = &modified
	}
	return info
}
