package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/analyzer"
	"github.com/tsukimori/sakuin/internal/backend"
	"github.com/tsukimori/sakuin/internal/config"
	"github.com/tsukimori/sakuin/internal/embedding"
	"github.com/tsukimori/sakuin/internal/ensemble"
	"github.com/tsukimori/sakuin/internal/storage"
	"github.com/tsukimori/sakuin/internal/vocab"
)

// Registry holds every configured project, built eagerly at startup so
// misconfiguration (unknown backend kinds, unreadable vocabularies) fails
// the process instead of the first request.
type Registry struct {
	projects map[string]*Project
	order    []string
	store    storage.Store
	logger   *zap.Logger
}

// NewRegistry builds all projects from configuration and restores their
// persisted models and ensemble weights. embedder and store may be nil;
// backends needing the embedder report themselves unavailable, and a nil
// store skips persistence.
func NewRegistry(cfg *config.Config, embedder embedding.Embedder, store storage.Store, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		projects: make(map[string]*Project, len(cfg.Projects)),
		store:    store,
		logger:   logger,
	}
	for _, pc := range cfg.Projects {
		p, err := r.buildProject(cfg, pc, embedder)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", pc.ID, err)
		}
		r.projects[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	return r, nil
}

func (r *Registry) buildProject(cfg *config.Config, pc config.ProjectConfig, embedder embedding.Embedder) (*Project, error) {
	var ix *vocab.Index
	if pc.Vocabulary != "" {
		loaded, err := vocab.Load(pc.Vocabulary)
		if err != nil {
			return nil, err
		}
		ix = loaded
	} else {
		ix = vocab.New(nil)
	}

	an, err := analyzer.New(pc.Analyzer)
	if err != nil {
		return nil, err
	}
	tr, err := parseTransform(pc.Transform)
	if err != nil {
		return nil, err
	}

	p := &Project{
		ID:        pc.ID,
		Name:      pc.Name,
		Language:  pc.Language,
		Analyzer:  pc.Analyzer,
		transform: tr,
		logger:    r.logger,
	}
	p.vocabulary.Store(ix)

	inclusion := make(map[string]float64, len(pc.Backends))
	for _, bc := range pc.Backends {
		be, err := backend.New(bc, backend.Deps{
			Vocabulary: ix,
			Analyzer:   an,
			Embedder:   embedder,
			IndexDir:   filepath.Join(cfg.Storage.IndexDir, pc.ID, bc.ID),
			Logger:     r.logger,
		})
		if err != nil {
			return nil, err
		}
		p.backends = append(p.backends, be)
		p.backendIDs = append(p.backendIDs, be.ID())
		inclusion[bc.ID] = bc.Weight
	}

	p.engine = ensemble.New(ensemble.Config{
		MaxConcurrency: cfg.Ensemble.MaxConcurrency,
		Timeout:        time.Duration(cfg.Ensemble.TimeoutSeconds) * time.Second,
	}, p.backendIDs, inclusion, r.logger)

	r.restore(p)
	return p, nil
}

// restore loads persisted model snapshots and ensemble weights. A missing
// artifact means the backend was never trained; a corrupt one is logged
// and skipped so one bad blob cannot take the project down.
func (r *Registry) restore(p *Project) {
	if r.store == nil {
		return
	}
	for _, be := range p.backends {
		snap, ok := be.(backend.Snapshotter)
		if !ok {
			continue
		}
		m, err := r.store.LoadModel(p.ID, be.ID())
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.Warn("model load failed",
				zap.String("project", p.ID),
				zap.String("backend", be.ID()),
				zap.Error(err))
			continue
		}
		if err := snap.Restore(m.Format, m.Blob); err != nil {
			r.logger.Warn("model restore failed",
				zap.String("project", p.ID),
				zap.String("backend", be.ID()),
				zap.Error(err))
			continue
		}
		r.logger.Info("model restored",
			zap.String("project", p.ID),
			zap.String("backend", be.ID()),
			zap.String("format", m.Format))
	}

	blob, err := r.store.LoadEnsemble(p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		r.logger.Warn("ensemble load failed", zap.String("project", p.ID), zap.Error(err))
		return
	}
	if err := p.engine.RestoreWeights(blob); err != nil {
		r.logger.Warn("ensemble restore failed", zap.String("project", p.ID), zap.Error(err))
	}
}

// Get returns the project by identifier.
func (r *Registry) Get(id string) (*Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, fmt.Errorf("unknown project %q", id)
	}
	return p, nil
}

// List returns all projects in configuration order.
func (r *Registry) List() []*Project {
	out := make([]*Project, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.projects[id])
	}
	return out
}

// Dump returns the project's introspection view including its last
// artifact modification time.
func (r *Registry) Dump(id string) (Info, error) {
	p, err := r.Get(id)
	if err != nil {
		return Info{}, err
	}
	var modified time.Time
	if r.store != nil {
		if ts, err := r.store.ModifiedAt(id); err == nil {
			modified = ts
		}
	}
	return p.Dump(modified), nil
}

// dataRemover is implemented by backends that keep model state on disk.
type dataRemover interface {
	RemoveData() error
}

// Clear removes all learned state for the project: persisted artifacts,
// disk-backed backend data, and the in-memory weight vector.
func (r *Registry) Clear(id string) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.DeleteProject(id); err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}
	}
	for _, be := range p.backends {
		if dr, ok := be.(dataRemover); ok {
			if err := dr.RemoveData(); err != nil {
				return fmt.Errorf("backend %q: %w", be.ID(), err)
			}
		}
	}
	p.engine.ResetWeights(p.backendIDs)
	r.logger.Info("project cleared", zap.String("project", id))
	return nil
}
