// Package training runs backend training for a project: it fans labeled
// documents out to every backend, downgrades incremental requests that a
// backend cannot honor, learns ensemble weights when the corpus carries
// gold subjects, and persists the resulting model artifacts.
package training

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/backend"
	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/ensemble"
)

// Store persists trained model state. Implemented by storage.Store; a nil
// store skips persistence.
type Store interface {
	SaveModel(projectID, backendID, format string, blob []byte) error
	SaveEnsemble(projectID string, blob []byte) error
}

// Result is the training outcome for one backend.
type Result struct {
	BackendID string        `json:"backend_id"`
	Duration  time.Duration `json:"duration"`
	// Downgraded is set when an incremental request was retried as a full
	// retrain because the backend does not support incremental learning.
	Downgraded bool `json:"downgraded,omitempty"`
	// Error carries the backend's failure; training of the other backends
	// is unaffected.
	Error string `json:"error,omitempty"`
}

// Report summarizes one training run across a project's backends.
type Report struct {
	ProjectID string        `json:"project_id"`
	Documents int           `json:"documents"`
	Results   []Result      `json:"results"`
	Duration  time.Duration `json:"duration"`
	// WeightsLearned is set when the corpus carried gold subjects and
	// ensemble weight learning ran after training.
	WeightsLearned bool `json:"weights_learned"`
}

// Succeeded reports whether at least one backend trained without error.
func (r *Report) Succeeded() bool {
	for _, res := range r.Results {
		if res.Error == "" {
			return true
		}
	}
	return false
}

// Coordinator drives training runs. Safe for concurrent use; per-backend
// exclusion during Learn is the backend's own responsibility.
type Coordinator struct {
	store  Store
	logger *zap.Logger
}

func NewCoordinator(store Store, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, logger: logger}
}

// Train trains every backend on the documents in parallel. A backend that
// rejects an incremental request with UnsupportedOperationError is retried
// with a full retrain and flagged as downgraded; any other failure is
// recorded in the report without aborting the run. When the corpus carries
// gold subjects and at least one backend trained, ensemble weights are
// re-learned. Trained snapshots and the weight vector are persisted when a
// store is configured.
func (c *Coordinator) Train(ctx context.Context, projectID string, backends []backend.Backend, engine *ensemble.Engine, docs []corpus.Document, incremental bool) (*Report, error) {
	start := time.Now()
	report := &Report{
		ProjectID: projectID,
		Documents: len(docs),
		Results:   make([]Result, len(backends)),
	}

	var wg sync.WaitGroup
	for i, be := range backends {
		wg.Add(1)
		go func(i int, be backend.Backend) {
			defer wg.Done()
			report.Results[i] = c.trainOne(ctx, be, docs, incremental)
		}(i, be)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if engine != nil && report.Succeeded() && corpus.HasGold(docs) {
		if err := engine.LearnWeights(ctx, backends, docs); err != nil {
			c.logger.Warn("weight learning failed",
				zap.String("project", projectID),
				zap.Error(err))
		} else {
			report.WeightsLearned = true
		}
	}

	c.persist(projectID, backends, engine, report)
	report.Duration = time.Since(start)
	c.logger.Info("training finished",
		zap.String("project", projectID),
		zap.Int("documents", len(docs)),
		zap.Bool("weights_learned", report.WeightsLearned),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (c *Coordinator) trainOne(ctx context.Context, be backend.Backend, docs []corpus.Document, incremental bool) Result {
	start := time.Now()
	res := Result{BackendID: be.ID()}

	err := be.Learn(ctx, docs, incremental)
	var unsupported *backend.UnsupportedOperationError
	if errors.As(err, &unsupported) && incremental {
		c.logger.Info("backend does not learn incrementally, retraining fully",
			zap.String("backend", be.ID()),
			zap.String("kind", be.Kind()))
		res.Downgraded = true
		err = be.Learn(ctx, docs, false)
	}
	if err != nil {
		res.Error = err.Error()
		c.logger.Warn("backend training failed",
			zap.String("backend", be.ID()),
			zap.Error(err))
	}
	res.Duration = time.Since(start)
	return res
}

// persist writes snapshots for the backends that trained cleanly, plus the
// ensemble weight vector. Persistence failures are logged, not fatal: the
// in-memory state is already live.
func (c *Coordinator) persist(projectID string, backends []backend.Backend, engine *ensemble.Engine, report *Report) {
	if c.store == nil {
		return
	}
	for i, be := range backends {
		if report.Results[i].Error != "" {
			continue
		}
		snap, ok := be.(backend.Snapshotter)
		if !ok {
			continue
		}
		format, blob, err := snap.Snapshot()
		if err != nil {
			c.logger.Warn("snapshot failed",
				zap.String("backend", be.ID()), zap.Error(err))
			continue
		}
		if err := c.store.SaveModel(projectID, be.ID(), format, blob); err != nil {
			c.logger.Warn("model persistence failed",
				zap.String("backend", be.ID()), zap.Error(err))
		}
	}
	if engine == nil {
		return
	}
	blob, err := engine.SnapshotWeights()
	if err != nil {
		c.logger.Warn("weights snapshot failed",
			zap.String("project", projectID), zap.Error(err))
		return
	}
	if err := c.store.SaveEnsemble(projectID, blob); err != nil {
		c.logger.Warn("weights persistence failed",
			zap.String("project", projectID), zap.Error(err))
	}
}
