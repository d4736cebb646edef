package control

import "eurobrainz/internal/param"

// DefaultHysteresis is the minimum normalized change committed to a live parameter.
const DefaultHysteresis = 0.001

// EvaluateMapping combines a knob position with a CV reading. Both are in
// [0, 1]; the CV swings ±1 around its centre, scaled by the attenuverter and
// added to the mapping origin.
func EvaluateMapping(m param.CVMapping, knob, cv float64) float64 {
	if !m.Mapped() {
		return knob
	}
	contribution := (cv - 0.5) * 2 * m.Attenuverter
	return clamp01(m.OriginOffset + contribution)
}

// Evaluate returns the effective normalized value of p.
func Evaluate(p *param.Parameter, knob, cv float64) float64 {
	if p == nil {
		return knob
	}
	return EvaluateMapping(p.CV, knob, cv)
}

// EvaluateInputs picks p's CV source out of cvs. A source outside cvs is
// treated as unmapped.
func EvaluateInputs(p *param.Parameter, knob float64, cvs []float64) float64 {
	if p == nil || !p.CV.Mapped() || p.CV.Source >= len(cvs) {
		return knob
	}
	return EvaluateMapping(p.CV, knob, cvs[p.CV.Source])
}

// Binder writes evaluated values back into live parameters.
//
// While suspended nothing is committed, so a stale knob reading cannot
// overwrite a page whose catchers are still being re-seeded.
type Binder struct {
	Hysteresis float64
	ready      bool
}

// NewBinder returns a ready binder.
func NewBinder(hysteresis float64) *Binder {
	if hysteresis < 0 {
		hysteresis = 0
	}
	return &Binder{Hysteresis: hysteresis, ready: true}
}

// Suspend stops commits until Resume.
func (b *Binder) Suspend() { b.ready = false }

// Resume re-enables commits.
func (b *Binder) Resume() { b.ready = true }

// Ready reports whether commits are enabled.
func (b *Binder) Ready() bool { return b.ready }

// Commit evaluates p against the knob and CV inputs and writes the result when
// it moved by more than the hysteresis. It reports whether p changed.
func (b *Binder) Commit(p *param.Parameter, knob float64, cvs []float64) bool {
	if !b.ready || p == nil {
		return false
	}
	return p.SetNormalizedWithHysteresis(EvaluateInputs(p, knob, cvs), b.Hysteresis)
}
