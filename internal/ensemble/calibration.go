// Package ensemble combines the suggestion results of a project's backends
// into one calibrated ranking. Each backend's raw score distribution is
// mapped onto an empirical probability-of-correctness scale by isotonic
// regression, and backend weights are derived from how discriminative the
// fitted mapping is.
package ensemble

import "sort"

// Sample is one calibration observation: a backend suggested a subject
// with score Raw, and Hit records whether the subject was in the gold set.
type Sample struct {
	Raw float64
	Hit bool
}

// Point is one breakpoint of a fitted calibration curve.
type Point struct {
	Raw        float64 `json:"raw"`
	Calibrated float64 `json:"calibrated"`
}

// Calibration is a monotonic non-decreasing mapping from a backend's raw
// score to an empirical correctness estimate. Fitted by pooled-adjacent-
// violators regression; applied by linear interpolation between
// breakpoints. A calibration never inverts the backend's own ranking.
type Calibration struct {
	Points []Point `json:"points"`
}

// pavBlock is a working block during the pooled-adjacent-violators fit.
type pavBlock struct {
	sum    float64
	count  int
	maxRaw float64
}

func (b pavBlock) mean() float64 {
	return b.sum / float64(b.count)
}

// FitCalibration fits an isotonic regression to the samples using the
// pooled-adjacent-violators algorithm: samples are ordered by raw score
// and adjacent blocks whose hit-rate decreases are pooled until the block
// means are non-decreasing. Returns nil when there are no samples.
func FitCalibration(samples []Sample) *Calibration {
	if len(samples) == 0 {
		return nil
	}
	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Raw < ordered[j].Raw })

	blocks := make([]pavBlock, 0, len(ordered))
	for _, s := range ordered {
		hit := 0.0
		if s.Hit {
			hit = 1.0
		}
		blocks = append(blocks, pavBlock{sum: hit, count: 1, maxRaw: s.Raw})
		// Pool while the ordering constraint is violated.
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.mean() <= last.mean() {
				break
			}
			merged := pavBlock{
				sum:    prev.sum + last.sum,
				count:  prev.count + last.count,
				maxRaw: last.maxRaw,
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, merged)
		}
	}

	points := make([]Point, len(blocks))
	for i, b := range blocks {
		points[i] = Point{Raw: b.maxRaw, Calibrated: clamp01(b.mean())}
	}
	return &Calibration{Points: points}
}

// Apply maps a raw score through the fitted curve. Scores below the first
// breakpoint get the first calibrated value, scores above the last get the
// last, and scores in between interpolate linearly, so the mapping is
// monotone non-decreasing everywhere.
func (c *Calibration) Apply(raw float64) float64 {
	if c == nil || len(c.Points) == 0 {
		return clamp01(raw)
	}
	pts := c.Points
	if raw <= pts[0].Raw {
		return pts[0].Calibrated
	}
	if raw >= pts[len(pts)-1].Raw {
		return pts[len(pts)-1].Calibrated
	}
	// Find the first breakpoint at or above raw.
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Raw >= raw })
	lo, hi := pts[i-1], pts[i]
	if hi.Raw == lo.Raw {
		return hi.Calibrated
	}
	frac := (raw - lo.Raw) / (hi.Raw - lo.Raw)
	return lo.Calibrated + frac*(hi.Calibrated-lo.Calibrated)
}

// AUC returns the area under the calibration curve over raw scores [0,1].
// A backend whose high scores reliably indicate correct subjects gets a
// larger area than one whose curve stays flat near zero, so the area
// serves as the backend's empirically-grounded contribution weight.
func (c *Calibration) AUC() float64 {
	if c == nil || len(c.Points) == 0 {
		return 0
	}
	// Sample the piecewise-linear curve at 0, 1, and every breakpoint
	// inside the interval, then integrate with the trapezoid rule.
	xs := []float64{0}
	for _, p := range c.Points {
		if p.Raw > 0 && p.Raw < 1 {
			xs = append(xs, p.Raw)
		}
	}
	xs = append(xs, 1)

	var area float64
	for i := 1; i < len(xs); i++ {
		y0 := c.Apply(xs[i-1])
		y1 := c.Apply(xs[i])
		area += (xs[i] - xs[i-1]) * (y0 + y1) / 2
	}
	return area
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
