package ensemble

// BackendState is the learned fusion state for one backend: its
// contribution weight and, after weight learning, its fitted calibration.
type BackendState struct {
	Weight      float64      `json:"weight"`
	Calibration *Calibration `json:"calibration,omitempty"`
}

// Weights is the ensemble weight vector. It is immutable once published:
// LearnWeights builds a complete new vector and swaps it in atomically, so
// concurrent readers always see either the fully-old or fully-new state.
type Weights struct {
	// Calibrated is false for the uniform default and true once weight
	// learning has run.
	Calibrated bool                     `json:"calibrated"`
	Backends   map[string]*BackendState `json:"backends"`
}

// UniformWeights returns the uninitialized state: every backend weighted
// equally, no calibrations.
func UniformWeights(backendIDs []string) *Weights {
	w := &Weights{Backends: make(map[string]*BackendState, len(backendIDs))}
	for _, id := range backendIDs {
		w.Backends[id] = &BackendState{Weight: 1}
	}
	return w
}

// WeightOf returns the backend's weight, defaulting to 1 for backends the
// vector has never seen (e.g. added to the project after the last fit).
func (w *Weights) WeightOf(backendID string) float64 {
	if s, ok := w.Backends[backendID]; ok {
		return s.Weight
	}
	return 1
}

// CalibrationOf returns the backend's fitted calibration, or nil when none
// has been learned.
func (w *Weights) CalibrationOf(backendID string) *Calibration {
	if s, ok := w.Backends[backendID]; ok {
		return s.Calibration
	}
	return nil
}
