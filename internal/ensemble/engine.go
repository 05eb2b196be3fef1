package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/backend"
	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/suggestion"
)

// minBackendWeight keeps a surviving backend from being silenced entirely
// by a poor calibration fit.
const minBackendWeight = 0.05

// ExhaustedError is returned when every backend failed for a suggest call.
// No partial result is fabricated; the per-backend failures are attached.
type ExhaustedError struct {
	Errs map[string]error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d backends failed", len(e.Errs))
}

// Config holds the fusion engine settings.
type Config struct {
	// MaxConcurrency bounds parallel backend calls; 0 means one worker
	// per backend.
	MaxConcurrency int
	// Timeout is the per-backend call budget when the caller supplies none.
	Timeout time.Duration
}

// Options are the caller-facing suggest parameters.
type Options struct {
	// Limit is the maximum suggestion count; values below 1 fall back to
	// the default of 10.
	Limit int
	// Threshold drops suggestions scoring below it.
	Threshold float64
	// Timeout overrides the engine's per-backend call budget.
	Timeout time.Duration
	// Subset, when non-nil, drops merged suggestions outside the
	// vocabulary before the limit is applied, so out-of-vocabulary
	// identifiers picked up during training never consume limit slots.
	Subset suggestion.Vocabulary
}

const defaultLimit = 10

// Engine fuses per-backend suggestion results for one project. The weight
// vector starts uniform and moves to the calibrated state when
// LearnWeights runs; it is replaced only by whole-vector atomic swaps, so
// suggest calls racing a re-fit see a consistent set of weights.
type Engine struct {
	cfg       Config
	inclusion map[string]float64
	logger    *zap.Logger
	weights   atomic.Pointer[Weights]
}

// New creates an engine with uniform weights. inclusion carries the
// per-backend weights from project configuration (missing entries count
// as 1); backendIDs fixes the set of backends the vector covers.
func New(cfg Config, backendIDs []string, inclusion map[string]float64, logger *zap.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{cfg: cfg, inclusion: inclusion, logger: logger}
	e.weights.Store(UniformWeights(backendIDs))
	return e
}

// Calibrated reports whether weight learning has produced the current
// vector.
func (e *Engine) Calibrated() bool {
	return e.weights.Load().Calibrated
}

// CurrentWeights returns the live weight vector. Callers must treat it as
// read-only.
func (e *Engine) CurrentWeights() *Weights {
	return e.weights.Load()
}

// Suggest fans the document text out to every backend, normalizes or
// calibrates each surviving result, merges them with the current weights,
// and limits to the caller's requested count and threshold. Backends that
// fail with recoverable errors abstain; only total exhaustion is an error.
func (e *Engine) Suggest(ctx context.Context, backends []backend.Backend, text string, opts Options) (suggestion.Result, error) {
	if opts.Limit < 1 {
		opts.Limit = defaultLimit
	}
	if len(backends) == 0 {
		return nil, &ExhaustedError{Errs: map[string]error{}}
	}

	results, errs := e.collect(ctx, backends, text, opts.Timeout)
	w := e.weights.Load()

	var (
		surviving []suggestion.Result
		weights   []float64
		failures  = make(map[string]error)
	)
	for i, be := range backends {
		if errs[i] != nil {
			failures[be.ID()] = errs[i]
			if backend.IsRecoverable(errs[i]) {
				e.logger.Debug("backend abstained",
					zap.String("backend", be.ID()),
					zap.Error(errs[i]))
			} else {
				e.logger.Warn("backend failed",
					zap.String("backend", be.ID()),
					zap.Error(errs[i]))
			}
			continue
		}
		surviving = append(surviving, e.normalize(w, be.ID(), results[i]))
		weights = append(weights, e.inclusionWeight(be.ID())*w.WeightOf(be.ID()))
	}
	if len(surviving) == 0 {
		return nil, &ExhaustedError{Errs: failures}
	}

	// Normalize the surviving weights to sum to 1 so the merge is a
	// weighted average and fused scores stay in [0,1] regardless of how
	// many backends abstained.
	var total float64
	for _, w := range weights {
		total += w
	}
	if total > 0 {
		for i := range weights {
			weights[i] /= total
		}
	}
	merged := suggestion.Merge(surviving, weights)
	if opts.Subset != nil {
		merged = suggestion.SubsetToVocabulary(merged, opts.Subset)
	}
	return suggestion.Limit(merged, opts.Limit, opts.Threshold), nil
}

// normalize applies the backend's fitted calibration when one exists and
// falls back to rank normalization otherwise. Calibration is monotone, so
// the backend's own ranking is never inverted.
func (e *Engine) normalize(w *Weights, backendID string, r suggestion.Result) suggestion.Result {
	cal := w.CalibrationOf(backendID)
	if cal == nil {
		return suggestion.Normalize(r, suggestion.NormalizeRank)
	}
	scores := make(map[string]float64, len(r))
	for _, s := range r {
		scores[s.SubjectID] = cal.Apply(s.Score)
	}
	return suggestion.FromMap(scores)
}

func (e *Engine) inclusionWeight(backendID string) float64 {
	if w, ok := e.inclusion[backendID]; ok && w > 0 {
		return w
	}
	return 1
}

// collect runs Suggest on every backend in parallel under a bounded worker
// pool and per-backend timeout. Results come back minmax-normalized so all
// downstream score handling operates in [0,1]; errs[i] is non-nil when
// backends[i] produced no usable result. Slices are indexed by backend
// position, so the outcome is independent of completion order.
func (e *Engine) collect(ctx context.Context, backends []backend.Backend, text string, timeout time.Duration) ([]suggestion.Result, []error) {
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	maxWorkers := e.cfg.MaxConcurrency
	if maxWorkers <= 0 || maxWorkers > len(backends) {
		maxWorkers = len(backends)
	}

	results := make([]suggestion.Result, len(backends))
	errs := make([]error, len(backends))
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	for i, be := range backends {
		wg.Add(1)
		go func(i int, be backend.Backend) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			r, err := be.Suggest(callCtx, text)
			if err != nil {
				// A timed-out call is a per-invocation availability
				// problem, not a training-state problem.
				if errors.Is(err, context.DeadlineExceeded) {
					err = &backend.UnavailableError{BackendID: be.ID(), Reason: "suggest timed out", Err: err}
				}
				errs[i] = err
				return
			}
			results[i] = suggestion.Normalize(r, suggestion.NormalizeMinMax)
		}(i, be)
	}
	wg.Wait()
	return results, errs
}

// LearnWeights fits per-backend calibrations against labeled documents and
// derives contribution weights from each calibration's discriminative
// quality. The new vector replaces the old one in a single atomic swap.
func (e *Engine) LearnWeights(ctx context.Context, backends []backend.Backend, docs []corpus.Document) error {
	samples := make(map[string][]Sample)
	labeled := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !doc.HasSubjects() {
			continue
		}
		labeled++
		gold := make(map[string]bool, len(doc.Subjects))
		for _, s := range doc.Subjects {
			gold[s] = true
		}

		results, errs := e.collect(ctx, backends, doc.Text, 0)
		for i, be := range backends {
			if errs[i] != nil {
				continue
			}
			// A backend returning nothing for this document contributes
			// no calibration points; that is fine.
			for _, s := range results[i] {
				samples[be.ID()] = append(samples[be.ID()], Sample{Raw: s.Score, Hit: gold[s.SubjectID]})
			}
		}
	}
	if labeled == 0 {
		return fmt.Errorf("weight learning needs labeled documents")
	}

	next := &Weights{Calibrated: true, Backends: make(map[string]*BackendState, len(backends))}
	for _, be := range backends {
		state := &BackendState{Weight: 1}
		if s := samples[be.ID()]; len(s) > 0 {
			cal := FitCalibration(s)
			state.Calibration = cal
			state.Weight = math.Max(cal.AUC(), minBackendWeight)
		}
		next.Backends[be.ID()] = state
		e.logger.Info("backend weight fitted",
			zap.String("backend", be.ID()),
			zap.Float64("weight", state.Weight),
			zap.Int("samples", len(samples[be.ID()])))
	}
	e.weights.Store(next)
	return nil
}

// ResetWeights returns the engine to the uniform, uncalibrated state.
func (e *Engine) ResetWeights(backendIDs []string) {
	e.weights.Store(UniformWeights(backendIDs))
}

// SnapshotWeights serializes the current weight vector and calibrations
// for the artifact store.
func (e *Engine) SnapshotWeights() ([]byte, error) {
	return json.Marshal(e.weights.Load())
}

// RestoreWeights replaces the weight vector with a previously snapshotted
// one.
func (e *Engine) RestoreWeights(blob []byte) error {
	var w Weights
	if err := json.Unmarshal(blob, &w); err != nil {
		return fmt.Errorf("restore ensemble weights: %w", err)
	}
	if w.Backends == nil {
		w.Backends = make(map[string]*BackendState)
	}
	e.weights.Store(&w)
	return nil
}
