package ensemble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tsukimori/sakuin/internal/backend"
	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/suggestion"
)

type stubBackend struct {
	id string
	fn func(ctx context.Context, text string) (suggestion.Result, error)
}

func (s *stubBackend) ID() string   { return s.id }
func (s *stubBackend) Kind() string { return "stub" }
func (s *stubBackend) Suggest(ctx context.Context, text string) (suggestion.Result, error) {
	return s.fn(ctx, text)
}
func (s *stubBackend) Learn(context.Context, []corpus.Document, bool) error { return nil }
func (s *stubBackend) IsTrained() bool                                      { return true }

func fixed(id string, scores map[string]float64) backend.Backend {
	return &stubBackend{id: id, fn: func(context.Context, string) (suggestion.Result, error) {
		return suggestion.FromMap(scores), nil
	}}
}

func failing(id string, err error) backend.Backend {
	return &stubBackend{id: id, fn: func(context.Context, string) (suggestion.Result, error) {
		return nil, err
	}}
}

func ids(backends []backend.Backend) []string {
	out := make([]string, len(backends))
	for i, b := range backends {
		out[i] = b.ID()
	}
	return out
}

func newTestEngine(backends []backend.Backend) *Engine {
	return New(Config{}, ids(backends), nil, nil)
}

func TestSuggestRankFusion(t *testing.T) {
	backends := []backend.Backend{
		fixed("b1", map[string]float64{"A": 0.9, "B": 0.1}),
		fixed("b2", map[string]float64{"B": 0.8, "C": 0.7}),
	}
	e := newTestEngine(backends)

	res, err := e.Suggest(context.Background(), backends, "text", Options{})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	// Under rank normalization B is top in one backend and present in the
	// other, so it outranks either backend's sole top subject.
	if len(res) != 3 {
		t.Fatalf("expected 3 fused suggestions, got %d", len(res))
	}
	if res[0].SubjectID != "B" {
		t.Errorf("fusion winner: got %s, want B", res[0].SubjectID)
	}
}

func TestSuggestSingleSurvivorAbstains(t *testing.T) {
	backends := []backend.Backend{
		fixed("ok", map[string]float64{"A": 0.4, "B": 0.2}),
		failing("down", &backend.UnavailableError{BackendID: "down", Reason: "no embedder"}),
		failing("cold", &backend.NotTrainedError{BackendID: "cold"}),
	}
	e := newTestEngine(backends)

	res, err := e.Suggest(context.Background(), backends, "text", Options{})
	if err != nil {
		t.Fatalf("abstaining backends must not fail the call: %v", err)
	}
	if len(res) != 2 || res[0].SubjectID != "A" {
		t.Fatalf("expected the surviving backend's ranking, got %+v", res)
	}
	// With one survivor and rank normalization the output ranking equals
	// the backend's own.
	if res[0].Score <= res[1].Score {
		t.Errorf("ranking collapsed: %+v", res)
	}
}

func TestSuggestAllFail(t *testing.T) {
	backends := []backend.Backend{
		failing("b1", &backend.NotTrainedError{BackendID: "b1"}),
		failing("b2", errors.New("disk gone")),
	}
	e := newTestEngine(backends)

	_, err := e.Suggest(context.Background(), backends, "text", Options{})
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if len(ex.Errs) != 2 {
		t.Errorf("exhaustion should carry both failures, got %v", ex.Errs)
	}
}

func TestSuggestNoBackends(t *testing.T) {
	e := newTestEngine(nil)
	_, err := e.Suggest(context.Background(), nil, "text", Options{})
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError for empty backend set, got %v", err)
	}
}

func TestSuggestTimeoutBecomesUnavailable(t *testing.T) {
	slow := &stubBackend{id: "slow", fn: func(ctx context.Context, _ string) (suggestion.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return suggestion.FromMap(map[string]float64{"A": 1}), nil
		}
	}}
	backends := []backend.Backend{slow}
	e := newTestEngine(backends)

	_, err := e.Suggest(context.Background(), backends, "text", Options{Timeout: 20 * time.Millisecond})
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	var ua *backend.UnavailableError
	if !errors.As(ex.Errs["slow"], &ua) {
		t.Errorf("timeout should surface as UnavailableError, got %v", ex.Errs["slow"])
	}
}

type stubVocab map[string]bool

func (v stubVocab) Contains(id string) bool { return v[id] }

func TestSuggestSubsetAppliedBeforeLimit(t *testing.T) {
	// "dead" outscores everything but is not in the vocabulary; it must
	// not consume a limit slot.
	backends := []backend.Backend{
		fixed("b1", map[string]float64{"dead": 0.9, "A": 0.6, "B": 0.3}),
	}
	e := newTestEngine(backends)

	res, err := e.Suggest(context.Background(), backends, "text", Options{
		Limit:  2,
		Subset: stubVocab{"A": true, "B": true},
	})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("limit 2 with 2 in-vocabulary candidates: got %d suggestions", len(res))
	}
	if res[0].SubjectID != "A" || res[1].SubjectID != "B" {
		t.Errorf("expected in-vocabulary ranking [A B], got %+v", res)
	}
}

func TestSuggestLimitAndThreshold(t *testing.T) {
	backends := []backend.Backend{
		fixed("b1", map[string]float64{"A": 0.9, "B": 0.6, "C": 0.3, "D": 0.1}),
	}
	e := newTestEngine(backends)

	res, err := e.Suggest(context.Background(), backends, "text", Options{Limit: 2})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(res) != 2 {
		t.Errorf("limit 2: got %d suggestions", len(res))
	}

	res, err = e.Suggest(context.Background(), backends, "text", Options{Limit: 10, Threshold: 0.6})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	for _, s := range res {
		if s.Score < 0.6 {
			t.Errorf("threshold leak: %+v", s)
		}
	}
}

func TestLearnWeightsFavorsDiscriminativeBackend(t *testing.T) {
	// The sharp backend scores the gold subject high; the dull one buries
	// it under two confident misses. Each document's text names its gold
	// subject so the stubs can react to it.
	sharp := &stubBackend{id: "sharp", fn: func(_ context.Context, text string) (suggestion.Result, error) {
		return suggestion.FromMap(map[string]float64{text: 0.9, "noise": 0.1}), nil
	}}
	dull := &stubBackend{id: "dull", fn: func(_ context.Context, text string) (suggestion.Result, error) {
		return suggestion.FromMap(map[string]float64{"noise": 0.9, "static": 0.8, text: 0.1}), nil
	}}
	broken := failing("broken", &backend.UnavailableError{BackendID: "broken", Reason: "offline"})
	backends := []backend.Backend{sharp, dull, broken}
	e := newTestEngine(backends)

	docs := []corpus.Document{
		{Text: "arch", Subjects: []string{"arch"}},
		{Text: "hist", Subjects: []string{"hist"}},
	}
	if err := e.LearnWeights(context.Background(), backends, docs); err != nil {
		t.Fatalf("learn weights: %v", err)
	}

	w := e.CurrentWeights()
	if !w.Calibrated {
		t.Error("vector should be marked calibrated after learning")
	}
	if w.WeightOf("sharp") <= w.WeightOf("dull") {
		t.Errorf("discriminative backend should outweigh the dull one: sharp=%f dull=%f",
			w.WeightOf("sharp"), w.WeightOf("dull"))
	}
	if w.WeightOf("broken") != 1 {
		t.Errorf("backend with no samples keeps the neutral weight, got %f", w.WeightOf("broken"))
	}
	if w.CalibrationOf("sharp") == nil {
		t.Error("sampled backend should carry a fitted calibration")
	}
	if w.CalibrationOf("broken") != nil {
		t.Error("unsampled backend must not carry a calibration")
	}
}

func TestLearnWeightsNeedsLabels(t *testing.T) {
	backends := []backend.Backend{fixed("b1", map[string]float64{"A": 1})}
	e := newTestEngine(backends)
	docs := []corpus.Document{{Text: "unlabeled"}}
	if err := e.LearnWeights(context.Background(), backends, docs); err == nil {
		t.Fatal("expected an error without labeled documents")
	}
}

func TestSuggestAppliesCalibration(t *testing.T) {
	backends := []backend.Backend{fixed("b1", map[string]float64{"A": 1.0, "B": 0.5})}
	e := newTestEngine(backends)

	blob := []byte(`{"calibrated":true,"backends":{"b1":{"weight":0.8,"calibration":{"points":[{"raw":0.4,"calibrated":0.2},{"raw":1.0,"calibrated":0.9}]}}}}`)
	if err := e.RestoreWeights(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}

	res, err := e.Suggest(context.Background(), backends, "text", Options{})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	// A lone backend's weight normalizes away; what remains is the
	// calibrated score itself.
	if res[0].SubjectID != "A" || !almostEqual(res[0].Score, 0.9) {
		t.Errorf("calibrated top score: got %+v, want A at 0.9", res[0])
	}
	// 0.5 interpolates between (0.4,0.2) and (1.0,0.9).
	wantB := 0.2 + (0.5-0.4)/(1.0-0.4)*(0.9-0.2)
	if res[1].SubjectID != "B" || !almostEqual(res[1].Score, wantB) {
		t.Errorf("calibrated interpolated score: got %+v, want B at %f", res[1], wantB)
	}
}

func TestWeightsSnapshotRoundTrip(t *testing.T) {
	backends := []backend.Backend{
		fixed("b1", map[string]float64{"arch": 0.9, "noise": 0.1}),
	}
	e := newTestEngine(backends)
	docs := []corpus.Document{
		{Text: "t", Subjects: []string{"arch"}},
	}
	if err := e.LearnWeights(context.Background(), backends, docs); err != nil {
		t.Fatalf("learn weights: %v", err)
	}
	blob, err := e.SnapshotWeights()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := newTestEngine(backends)
	if restored.Calibrated() {
		t.Fatal("fresh engine must start uncalibrated")
	}
	if err := restored.RestoreWeights(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Calibrated() {
		t.Error("restored engine should be calibrated")
	}
	if got, want := restored.CurrentWeights().WeightOf("b1"), e.CurrentWeights().WeightOf("b1"); got != want {
		t.Errorf("weight round trip: got %f, want %f", got, want)
	}
}

func TestInclusionWeightScalesContribution(t *testing.T) {
	backends := []backend.Backend{
		fixed("loud", map[string]float64{"A": 1.0}),
		fixed("quiet", map[string]float64{"B": 1.0}),
	}
	e := New(Config{}, ids(backends), map[string]float64{"quiet": 0.1}, nil)

	res, err := e.Suggest(context.Background(), backends, "text", Options{})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if res[0].SubjectID != "A" {
		t.Errorf("down-weighted backend should lose, got %+v", res)
	}
}
