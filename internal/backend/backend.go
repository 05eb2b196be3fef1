package backend

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/analyzer"
	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/embedding"
	"github.com/tsukimori/sakuin/internal/suggestion"
	"github.com/tsukimori/sakuin/internal/vocab"
)

// maxCandidates bounds how many suggestions a backend returns per call;
// the ensemble applies the caller's limit after merging.
const maxCandidates = 100

// Backend is one pluggable subject-suggestion algorithm. Implementations
// own their learned model state exclusively; Suggest and Learn are safe for
// concurrent use, and Learn is exclusive per backend instance.
type Backend interface {
	// ID returns the backend's configured identifier within its project.
	ID() string
	// Kind returns the algorithm family tag (e.g. "tfidf").
	Kind() string
	// Suggest returns ranked subject suggestions for the document text.
	// Fails with *NotTrainedError before any successful Learn (unless the
	// variant has a built-in default) and with *UnavailableError when a
	// required capability is missing.
	Suggest(ctx context.Context, text string) (suggestion.Result, error)
	// Learn updates the model from labeled documents. When incremental is
	// true, prior learning is kept; variants that cannot do that fail with
	// *UnsupportedOperationError. When false, prior state is discarded.
	Learn(ctx context.Context, docs []corpus.Document, incremental bool) error
	// IsTrained reports whether the backend can suggest.
	IsTrained() bool
}

// Snapshotter is implemented by backends whose model state round-trips
// through the artifact store as an opaque blob plus a format tag. Backends
// that persist themselves on disk (e.g. the bleve index) do not implement it.
type Snapshotter interface {
	Snapshot() (format string, blob []byte, err error)
	Restore(format string, blob []byte) error
}

// Config is one backend declaration from project configuration.
type Config struct {
	ID     string            `yaml:"id"`
	Kind   string            `yaml:"kind"`
	Weight float64           `yaml:"weight"`
	Params map[string]string `yaml:"params"`
}

// Deps are the collaborators a backend may bind at construction time.
type Deps struct {
	Vocabulary *vocab.Index
	Analyzer   analyzer.Analyzer
	// Embedder is optional; backends requiring it report UnavailableError
	// when it is nil.
	Embedder embedding.Embedder
	// IndexDir is the project-scoped directory for disk-backed models.
	IndexDir string
	Logger   *zap.Logger
}

// Constructor builds a backend variant from its configuration.
type Constructor func(cfg Config, deps Deps) (Backend, error)

var registry = map[string]Constructor{}

// Register adds a backend kind to the registry. Called from variant init
// functions; later registrations of the same kind replace earlier ones.
func Register(kind string, ctor Constructor) {
	registry[kind] = ctor
}

// New constructs a backend of the configured kind. Unknown kinds fail here,
// at project load, rather than at suggest time.
func New(cfg Config, deps Deps) (Backend, error) {
	ctor, ok := registry[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("backend of kind %q has no id", cfg.Kind)
	}
	return ctor(cfg, deps)
}

// Kinds returns all registered backend kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
