package param

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Kind classifies how a parameter is edited and displayed.
type Kind int

const (
	Continuous Kind = iota
	Bipolar
	Enumerated
	Toggle
	Stepped
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Bipolar:
		return "bipolar"
	case Enumerated:
		return "enum"
	case Toggle:
		return "toggle"
	case Stepped:
		return "stepped"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind by name so snapshots stay readable.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Unmapped marks a CV mapping with no source.
const Unmapped = -1

const (
	fineStep   = 0.01
	coarseStep = 1.0
)

// CVMapping binds a parameter to one of the CV inputs.
type CVMapping struct {
	Source       int     `json:"source" yaml:"source"`
	Attenuverter float64 `json:"attenuverter" yaml:"attenuverter"`
	OriginOffset float64 `json:"origin_offset" yaml:"origin_offset"`
	Active       bool    `json:"active" yaml:"active"`
}

// DefaultMapping is the unbound mapping every parameter starts with.
func DefaultMapping() CVMapping {
	return CVMapping{
		Source:       Unmapped,
		Attenuverter: 1.0,
		OriginOffset: 0.5,
	}
}

// Mapped reports whether the mapping participates in value computation.
// An unmapped source is never active, whatever Active says.
func (m CVMapping) Mapped() bool {
	return m.Source > Unmapped && m.Active
}

// Parameter is one controllable quantity.
//
// The control loop is the only writer. The value is kept in an atomic word so
// the audio goroutine can read it between control ticks without locking.
type Parameter struct {
	Name string
	Kind Kind
	Min  float64
	Max  float64

	// Labels for Enumerated parameters. LabelFn, when set, takes precedence so
	// labels can follow another parameter (engine names follow the bank).
	Labels  []string
	LabelFn func(index int) string

	CV CVMapping

	def  float64
	bits atomic.Uint64
}

func newParameter(name string, kind Kind, min, max, def float64) *Parameter {
	if max < min {
		min, max = max, min
	}
	p := &Parameter{
		Name: name,
		Kind: kind,
		Min:  min,
		Max:  max,
		CV:   DefaultMapping(),
	}
	p.def = p.clamp(def)
	p.store(p.def)
	return p
}

// NewContinuous creates a parameter over [min, max].
func NewContinuous(name string, min, max, def float64) *Parameter {
	return newParameter(name, Continuous, min, max, def)
}

// NewBipolar creates a parameter over [-1, 1].
func NewBipolar(name string, def float64) *Parameter {
	return newParameter(name, Bipolar, -1, 1, def)
}

// NewEnum creates an enumerated parameter whose value indexes labels.
func NewEnum(name string, labels []string, def int) *Parameter {
	max := 0.0
	if len(labels) > 0 {
		max = float64(len(labels) - 1)
	}
	p := newParameter(name, Enumerated, 0, max, float64(def))
	p.Labels = labels
	return p
}

// NewToggle creates an on/off parameter.
func NewToggle(name string, on bool) *Parameter {
	def := 0.0
	if on {
		def = 1
	}
	return newParameter(name, Toggle, 0, 1, def)
}

// NewStepped creates an integer parameter over [min, max].
func NewStepped(name string, min, max, def int) *Parameter {
	return newParameter(name, Stepped, float64(min), float64(max), float64(def))
}

func (p *Parameter) load() float64   { return math.Float64frombits(p.bits.Load()) }
func (p *Parameter) store(v float64) { p.bits.Store(math.Float64bits(v)) }

func (p *Parameter) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.Min
	}
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// Value returns the current value. Safe for concurrent readers.
func (p *Parameter) Value() float64 { return p.load() }

// Default returns the value the parameter was created with.
func (p *Parameter) Default() float64 { return p.def }

// Set writes v clamped into [Min, Max].
func (p *Parameter) Set(v float64) { p.store(p.clamp(v)) }

// Reset restores the default value and clears the CV mapping.
func (p *Parameter) Reset() {
	p.store(p.def)
	p.CV = DefaultMapping()
}

// Normalized maps the value into [0, 1]. A zero-width range yields 0.
func (p *Parameter) Normalized() float64 {
	span := p.Max - p.Min
	if span <= 0 {
		return 0
	}
	return (p.load() - p.Min) / span
}

// SetNormalized writes a [0, 1] position scaled into the parameter range.
func (p *Parameter) SetNormalized(n float64) {
	p.Set(p.Min + clamp01(n)*(p.Max-p.Min))
}

// SetNormalizedWithHysteresis commits n only when it differs from the current
// normalized value by more than threshold. It reports whether a write happened.
func (p *Parameter) SetNormalizedWithHysteresis(n, threshold float64) bool {
	n = clamp01(n)
	if math.Abs(n-p.Normalized()) <= threshold {
		return false
	}
	p.SetNormalized(n)
	return true
}

// Index is the rounded value, used by enumerated and stepped kinds.
func (p *Parameter) Index() int {
	return int(math.Floor(p.load() + 0.5))
}

// Count is the number of options of an enumerated parameter.
func (p *Parameter) Count() int {
	if p.Kind != Enumerated {
		return 0
	}
	return int(p.Max-p.Min) + 1
}

// Label returns the display label of the current option.
func (p *Parameter) Label() string {
	i := p.Index()
	if p.LabelFn != nil {
		return p.LabelFn(i)
	}
	if i >= 0 && i < len(p.Labels) {
		return p.Labels[i]
	}
	return ""
}

// StepSize is the edit increment for one encoder detent.
func (p *Parameter) StepSize() float64 {
	switch p.Kind {
	case Enumerated, Toggle, Stepped:
		return coarseStep
	default:
		return fineStep
	}
}

// Step moves the value by delta detents, clamped to the range.
func (p *Parameter) Step(delta int) {
	if delta == 0 {
		return
	}
	v := p.load() + float64(delta)*p.StepSize()
	if p.Kind == Enumerated || p.Kind == Stepped || p.Kind == Toggle {
		v = math.Floor(v + 0.5)
	}
	p.Set(v)
}

// Format renders the value for the display.
func (p *Parameter) Format() string {
	v := p.load()
	switch p.Kind {
	case Enumerated:
		return p.Label()
	case Toggle:
		if v >= 0.5 {
			return "ON"
		}
		return "OFF"
	case Stepped:
		return fmt.Sprintf("%d", p.Index())
	case Bipolar:
		return fmt.Sprintf("%+.2f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
