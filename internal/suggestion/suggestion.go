// Package suggestion defines the ranked subject suggestion value type and
// the score operations (normalize, merge, limit, vocabulary subset) used by
// backends and the ensemble engine.
package suggestion

import "sort"

// Suggestion is one suggested subject with a relevance score in [0,1].
type Suggestion struct {
	SubjectID string  `json:"subject_id"`
	Label     string  `json:"label,omitempty"`
	Score     float64 `json:"score"`
}

// Result is an ordered list of suggestions: descending by score, ties broken
// by subject ID so that equal inputs always produce the same order. A Result
// never contains the same subject ID twice. Results are treated as immutable
// once returned; operations below return fresh slices.
type Result []Suggestion

// FromMap builds a sorted Result from a subject ID -> score map.
func FromMap(scores map[string]float64) Result {
	r := make(Result, 0, len(scores))
	for id, score := range scores {
		r = append(r, Suggestion{SubjectID: id, Score: score})
	}
	r.sort()
	return r
}

// sort orders r descending by score, ties ascending by subject ID.
func (r Result) sort() {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		return r[i].SubjectID < r[j].SubjectID
	})
}

// NormalizeMode selects how Normalize rescales scores.
type NormalizeMode string

const (
	// NormalizeNone passes scores through unchanged.
	NormalizeNone NormalizeMode = "none"
	// NormalizeMinMax divides by the maximum score so the top entry gets 1.0
	// and score ratios are preserved.
	NormalizeMinMax NormalizeMode = "minmax"
	// NormalizeRank replaces each score with 1 - position/len, so the top
	// entry gets 1.0 regardless of the backend's raw scale.
	NormalizeRank NormalizeMode = "rank"
)

// Normalize returns a copy of r with scores rescaled to a common [0,1]
// reference scale. Backends score on incompatible raw scales, so results
// must be normalized before they can be merged.
func Normalize(r Result, mode NormalizeMode) Result {
	out := make(Result, len(r))
	copy(out, r)
	switch mode {
	case NormalizeMinMax:
		var max float64
		for _, s := range out {
			if s.Score > max {
				max = s.Score
			}
		}
		if max > 0 {
			for i := range out {
				out[i].Score /= max
			}
		}
	case NormalizeRank:
		n := float64(len(out))
		for i := range out {
			out[i].Score = 1 - float64(i)/n
		}
	}
	return out
}

// Merge combines results into one: for every subject appearing in any input,
// the combined score is the weighted sum of its scores across inputs, with
// absent entries contributing zero. results[i] is weighted by weights[i];
// a nil weights slice means uniform weights of 1. The output is re-sorted
// descending by combined score with ties broken by subject ID, so the merge
// is deterministic and invariant under permutation of the input/weight pairs.
func Merge(results []Result, weights []float64) Result {
	combined := make(map[string]float64)
	for i, r := range results {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		for _, s := range r {
			combined[s.SubjectID] += w * s.Score
		}
	}
	return FromMap(combined)
}

// Limit keeps the top maxCount entries of r whose score is at least minScore.
// If fewer entries qualify, fewer are returned; the result is never padded.
// A non-positive maxCount yields an empty result.
func Limit(r Result, maxCount int, minScore float64) Result {
	if maxCount < 0 {
		maxCount = 0
	}
	out := make(Result, 0, maxCount)
	for _, s := range r {
		if len(out) >= maxCount {
			break
		}
		if s.Score >= minScore {
			out = append(out, s)
		}
	}
	return out
}

// Vocabulary is the subject-existence check needed for subset filtering.
type Vocabulary interface {
	Contains(subjectID string) bool
}

// SubsetToVocabulary drops entries whose subject is not in the vocabulary.
// A backend trained against a stale vocabulary snapshot must not leak dead
// identifiers to callers.
func SubsetToVocabulary(r Result, v Vocabulary) Result {
	out := make(Result, 0, len(r))
	for _, s := range r {
		if v.Contains(s.SubjectID) {
			out = append(out, s)
		}
	}
	return out
}
