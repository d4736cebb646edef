package control

import (
	"errors"
	"math"
)

// KnobState is the mode of a knob catcher.
type KnobState int

const (
	Tracking KnobState = iota
	Waiting
	CatchingUp
)

func (s KnobState) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Waiting:
		return "waiting"
	case CatchingUp:
		return "catching_up"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s KnobState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CatcherConfig tunes a knob catcher. All values are in normalized control units.
type CatcherConfig struct {
	Coefficient       float64 `yaml:"coefficient"`
	CatchUp           bool    `yaml:"catch_up"`
	MovementThreshold float64 `yaml:"movement_threshold"`
	MinDelta          float64 `yaml:"min_delta"`
	CatchUpThreshold  float64 `yaml:"catch_up_threshold"`
	SkewMin           float64 `yaml:"skew_min"`
	SkewMax           float64 `yaml:"skew_max"`
}

// DefaultCatcherConfig returns the tuning used for the play page.
func DefaultCatcherConfig() CatcherConfig {
	return CatcherConfig{
		Coefficient:       0.01,
		CatchUp:           true,
		MovementThreshold: 0.03,
		MinDelta:          0.005,
		CatchUpThreshold:  0.005,
		SkewMin:           0.1,
		SkewMax:           10.0,
	}
}

// Validate checks the tuning constants.
func (c CatcherConfig) Validate() error {
	if c.Coefficient <= 0 || c.Coefficient > 1 {
		return errors.New("coefficient must be in (0, 1]")
	}
	if c.MovementThreshold <= 0 || c.MovementThreshold >= 1 {
		return errors.New("movement_threshold must be in (0, 1)")
	}
	if c.MinDelta < 0 || c.CatchUpThreshold <= 0 {
		return errors.New("min_delta must be >= 0 and catch_up_threshold > 0")
	}
	if c.SkewMin <= 0 || c.SkewMax < c.SkewMin {
		return errors.New("skew bounds must satisfy 0 < skew_min <= skew_max")
	}
	if c.SkewMin > 1 {
		return errors.New("skew_min must be <= 1")
	}
	return nil
}

// KnobCatcher reconciles a physical knob with a stored value so that a page
// change never makes the driven parameter jump.
type KnobCatcher struct {
	cfg    CatcherConfig
	filter *Filter

	state    KnobState
	stored   float64
	previous float64
}

// NewKnobCatcher returns a catcher in Tracking.
func NewKnobCatcher(cfg CatcherConfig) *KnobCatcher {
	return &KnobCatcher{
		cfg:    cfg,
		filter: NewFilter(FilterConfig{Coefficient: cfg.Coefficient}),
	}
}

// State returns the current mode.
func (k *KnobCatcher) State() KnobState { return k.state }

// Stored returns the value presented while waiting or catching up.
func (k *KnobCatcher) Stored() float64 { return k.stored }

// Filtered returns the last smoothed knob reading.
func (k *KnobCatcher) Filtered() float64 { return k.filter.Value() }

// SetCatchUp switches between catch-up and snap behaviour.
func (k *KnobCatcher) SetCatchUp(on bool) { k.cfg.CatchUp = on }

// Process feeds one raw reading and returns the value that should drive the
// parameter this tick.
func (k *KnobCatcher) Process(raw float64) float64 {
	filtered := k.filter.Process(raw)

	switch k.state {
	case Waiting:
		if math.Abs(filtered-k.previous) <= k.cfg.MovementThreshold {
			return k.stored
		}
		k.previous = filtered
		if !k.cfg.CatchUp {
			k.state = Tracking
			return filtered
		}
		k.state = CatchingUp
		return k.stored

	case CatchingUp:
		delta := filtered - k.previous
		if math.Abs(delta) > k.cfg.MinDelta {
			k.stored = clamp01(k.stored + k.skew(delta)*delta)
			k.previous = filtered
		} else {
			// Knob at rest: glide toward it at the slowest skew so a still
			// knob is still reached in bounded time.
			k.stored = clamp01(k.stored + k.cfg.SkewMin*(filtered-k.stored))
		}
		if math.Abs(k.stored-filtered) < k.cfg.CatchUpThreshold {
			k.state = Tracking
			k.previous = filtered
		}
		return k.stored

	default:
		k.previous = filtered
		return filtered
	}
}

func (k *KnobCatcher) skew(delta float64) float64 {
	var s float64
	if delta > 0 {
		s = (1.001 - k.stored) / (1.001 - k.previous)
	} else {
		s = (0.001 + k.stored) / (0.001 + k.previous)
	}
	return math.Max(k.cfg.SkewMin, math.Min(k.cfg.SkewMax, s))
}

// OnPageChange holds the output at v until the knob is moved.
func (k *KnobCatcher) OnPageChange(v float64) {
	k.stored = clamp01(v)
	k.previous = k.filter.Value()
	k.state = Waiting
}

// ForceTracking drops any catch-up progress and follows the knob again.
func (k *KnobCatcher) ForceTracking() {
	k.state = Tracking
	k.previous = k.filter.Value()
}

// Prime seeds the filter with a known knob position.
func (k *KnobCatcher) Prime(raw float64) {
	k.filter.Prime(raw)
	k.previous = k.filter.Value()
}

// Reset returns the catcher to its initial state.
func (k *KnobCatcher) Reset() {
	k.filter.Reset()
	k.state = Tracking
	k.stored = 0
	k.previous = 0
}

// CatcherBank holds one catcher per knob on a page.
type CatcherBank struct {
	catchers []*KnobCatcher
}

// NewCatcherBank creates one catcher per config.
func NewCatcherBank(cfgs ...CatcherConfig) *CatcherBank {
	b := &CatcherBank{catchers: make([]*KnobCatcher, len(cfgs))}
	for i, c := range cfgs {
		b.catchers[i] = NewKnobCatcher(c)
	}
	return b
}

// Len returns the number of knobs.
func (b *CatcherBank) Len() int { return len(b.catchers) }

// At returns the catcher at i, or nil.
func (b *CatcherBank) At(i int) *KnobCatcher {
	if i < 0 || i >= len(b.catchers) {
		return nil
	}
	return b.catchers[i]
}

// Process runs knob i. Out-of-range knobs return 0.
func (b *CatcherBank) Process(i int, raw float64) float64 {
	k := b.At(i)
	if k == nil {
		return 0
	}
	return k.Process(raw)
}

// OnPageChange re-seeds every catcher; values beyond the bank are ignored and
// catchers without a value are seeded with 0.
func (b *CatcherBank) OnPageChange(values []float64) {
	for i, k := range b.catchers {
		v := 0.0
		if i < len(values) {
			v = values[i]
		}
		k.OnPageChange(v)
	}
}

// ForceAllTracking forces every catcher into Tracking.
func (b *CatcherBank) ForceAllTracking() {
	for _, k := range b.catchers {
		k.ForceTracking()
	}
}

// Reset resets every catcher.
func (b *CatcherBank) Reset() {
	for _, k := range b.catchers {
		k.Reset()
	}
}

// State returns the mode of knob i, or Tracking when out of range.
func (b *CatcherBank) State(i int) KnobState {
	k := b.At(i)
	if k == nil {
		return Tracking
	}
	return k.State()
}

// States copies the mode of every knob.
func (b *CatcherBank) States() []KnobState {
	out := make([]KnobState, len(b.catchers))
	for i, k := range b.catchers {
		out[i] = k.State()
	}
	return out
}

// Prime seeds every filter with the given knob positions.
func (b *CatcherBank) Prime(raw []float64) {
	for i, k := range b.catchers {
		if i < len(raw) {
			k.Prime(raw[i])
		}
	}
}
