package control

import (
	"errors"
	"fmt"
)

// FilterConfig tunes one control channel.
//
// InputLow/InputHigh describe the sub-range a pot actually reaches; when
// InputHigh > InputLow the reading is stretched back to [0, 1] before
// smoothing. EdgeSnap pins outputs within that distance of 0 or 1 to the edge
// so enumerated parameters can reach their first and last option.
type FilterConfig struct {
	Coefficient float64 `yaml:"coefficient"`
	InputLow    float64 `yaml:"input_low,omitempty"`
	InputHigh   float64 `yaml:"input_high,omitempty"`
	EdgeSnap    float64 `yaml:"edge_snap,omitempty"`
}

// Validate checks the coefficient and range.
func (c FilterConfig) Validate() error {
	if c.Coefficient <= 0 || c.Coefficient > 1 {
		return fmt.Errorf("coefficient must be in (0, 1], got %v", c.Coefficient)
	}
	if c.InputHigh != 0 || c.InputLow != 0 {
		if c.InputLow < 0 || c.InputHigh > 1 || c.InputHigh <= c.InputLow {
			return errors.New("input range must satisfy 0 <= input_low < input_high <= 1")
		}
	}
	if c.EdgeSnap < 0 || c.EdgeSnap >= 0.5 {
		return errors.New("edge_snap must be in [0, 0.5)")
	}
	return nil
}

// Filter is a one-pole smoother for a single control channel.
type Filter struct {
	cfg   FilterConfig
	state float64
	out   float64
}

// NewFilter returns a filter with zero state.
func NewFilter(cfg FilterConfig) *Filter {
	if cfg.Coefficient <= 0 || cfg.Coefficient > 1 {
		cfg.Coefficient = 1
	}
	return &Filter{cfg: cfg}
}

// Process feeds one raw reading and returns the smoothed value.
func (f *Filter) Process(raw float64) float64 {
	f.state += f.cfg.Coefficient * (f.scale(raw) - f.state)
	f.out = f.snap(f.state)
	return f.out
}

func (f *Filter) scale(raw float64) float64 {
	if f.cfg.InputHigh > f.cfg.InputLow {
		raw = (raw - f.cfg.InputLow) / (f.cfg.InputHigh - f.cfg.InputLow)
	}
	return clamp01(raw)
}

func (f *Filter) snap(v float64) float64 {
	if s := f.cfg.EdgeSnap; s > 0 {
		if v < s {
			return 0
		} else if v > 1-s {
			return 1
		}
	}
	return v
}

// Value returns the last output without advancing the filter.
func (f *Filter) Value() float64 { return f.out }

// Prime jumps straight to a raw reading, skipping the settle time.
func (f *Filter) Prime(raw float64) {
	f.state = f.scale(raw)
	f.out = f.snap(f.state)
}

// Reset zeroes the state.
func (f *Filter) Reset() {
	f.state = 0
	f.out = 0
}

// FilterBank holds one filter per channel.
type FilterBank struct {
	filters []*Filter
}

// NewFilterBank creates one filter per config.
func NewFilterBank(cfgs ...FilterConfig) *FilterBank {
	b := &FilterBank{filters: make([]*Filter, len(cfgs))}
	for i, c := range cfgs {
		b.filters[i] = NewFilter(c)
	}
	return b
}

// Len returns the number of channels.
func (b *FilterBank) Len() int { return len(b.filters) }

// Process filters channel i. Out-of-range channels return 0.
func (b *FilterBank) Process(i int, raw float64) float64 {
	if i < 0 || i >= len(b.filters) {
		return 0
	}
	return b.filters[i].Process(raw)
}

// Value returns the last output of channel i, or 0 when out of range.
func (b *FilterBank) Value(i int) float64 {
	if i < 0 || i >= len(b.filters) {
		return 0
	}
	return b.filters[i].Value()
}

// Prime jumps channel i straight to a raw reading.
func (b *FilterBank) Prime(i int, raw float64) {
	if i < 0 || i >= len(b.filters) {
		return
	}
	b.filters[i].Prime(raw)
}

// Values copies all channel outputs.
func (b *FilterBank) Values() []float64 {
	out := make([]float64, len(b.filters))
	for i, f := range b.filters {
		out[i] = f.Value()
	}
	return out
}

// Reset zeroes every channel.
func (b *FilterBank) Reset() {
	for _, f := range b.filters {
		f.Reset()
	}
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
