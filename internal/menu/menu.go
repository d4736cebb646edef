// Package menu implements the parameter browsing and CV mapping menu.
//
// The navigator owns no timing. The control loop accumulates encoder detents
// and classified presses and calls Update once per tick.
package menu

import (
	"math"

	"eurobrainz/internal/param"
)

// DefaultVisible is the number of rows shown at once.
const DefaultVisible = 4

// attenuverterStep is the submenu edit increment per detent.
const attenuverterStep = 0.05

// Mode is the UI mode of the menu.
type Mode int

const (
	Navigate Mode = iota
	EditValue
	Submenu
	SubmenuEdit
)

func (m Mode) String() string {
	switch m {
	case Navigate:
		return "navigate"
	case EditValue:
		return "edit_value"
	case Submenu:
		return "submenu"
	case SubmenuEdit:
		return "submenu_edit"
	default:
		return "unknown"
	}
}

// MarshalText renders the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// SubmenuItem is a row of the per-parameter CV submenu.
type SubmenuItem int

const (
	ItemCVSource SubmenuItem = iota
	ItemAttenuverter
	ItemCaptureOrigin

	submenuItemCount
)

func (i SubmenuItem) String() string {
	switch i {
	case ItemCVSource:
		return "cv_source"
	case ItemAttenuverter:
		return "attenuverter"
	case ItemCaptureOrigin:
		return "capture_origin"
	default:
		return "unknown"
	}
}

// MarshalText renders the item by name.
func (i SubmenuItem) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// State is the complete menu state. It is a plain value so snapshots can be
// copied to renderers.
type State struct {
	Selected     int             `json:"selected"`
	Count        int             `json:"count"`
	ScrollOffset int             `json:"scroll_offset"`
	Visible      int             `json:"visible"`
	Mode         Mode            `json:"mode"`
	Item         SubmenuItem     `json:"item"`
	SubmenuParam int             `json:"submenu_param"`
	Pending      param.CVMapping `json:"pending"`
}

// Input is the user input gathered during one tick.
type Input struct {
	Delta      int
	ShortPress bool
	LongPress  bool
}

// Empty reports whether the input carries nothing to apply.
func (in Input) Empty() bool {
	return in.Delta == 0 && !in.ShortPress && !in.LongPress
}

// Effect tells the control loop what an update changed.
type Effect struct {
	ScrollChanged  bool
	Edited         bool
	MappingChanged bool
	Changed        bool
}

func (e *Effect) merge(o Effect) {
	e.ScrollChanged = e.ScrollChanged || o.ScrollChanged
	e.Edited = e.Edited || o.Edited
	e.MappingChanged = e.MappingChanged || o.MappingChanged
	e.Changed = e.Changed || o.Changed
}

// KnobSource returns the knob-derived normalized value currently driving a
// parameter, if any.
type KnobSource func(index int) (float64, bool)

// Navigator is the menu state machine.
type Navigator struct {
	state    State
	params   *param.Table
	cvInputs int
}

// New returns a navigator over params with the given window size and number
// of CV inputs offered as mapping sources.
func New(params *param.Table, visible, cvInputs int) *Navigator {
	if visible <= 0 {
		visible = DefaultVisible
	}
	return &Navigator{
		state: State{
			Count:        params.Len(),
			Visible:      visible,
			SubmenuParam: -1,
			Pending:      param.DefaultMapping(),
		},
		params:   params,
		cvInputs: cvInputs,
	}
}

// State returns a copy of the current state.
func (n *Navigator) State() State { return n.state }

// VisibleRange returns the half-open index range shown on screen.
func (n *Navigator) VisibleRange() (int, int) {
	end := n.state.ScrollOffset + n.state.Visible
	if end > n.state.Count {
		end = n.state.Count
	}
	return n.state.ScrollOffset, end
}

// NextParam selects the following parameter, wrapping to the first.
func (n *Navigator) NextParam() {
	if n.state.Count == 0 {
		return
	}
	n.state.Selected++
	if n.state.Selected >= n.state.Count {
		n.state.Selected = 0
	}
	n.scrollToSelected()
}

// PrevParam selects the preceding parameter, wrapping to the last.
func (n *Navigator) PrevParam() {
	if n.state.Count == 0 {
		return
	}
	n.state.Selected--
	if n.state.Selected < 0 {
		n.state.Selected = n.state.Count - 1
	}
	n.scrollToSelected()
}

// Select jumps to index i, clamped to the table.
func (n *Navigator) Select(i int) {
	if n.state.Count == 0 {
		return
	}
	n.state.Selected = max(0, min(i, n.state.Count-1))
	n.scrollToSelected()
}

// scrollToSelected scrolls just enough to bring the selection into view.
func (n *Navigator) scrollToSelected() {
	s := &n.state
	if s.Selected < s.ScrollOffset {
		s.ScrollOffset = s.Selected
	} else if s.Selected >= s.ScrollOffset+s.Visible {
		s.ScrollOffset = s.Selected - s.Visible + 1
	}
	if s.ScrollOffset < 0 {
		s.ScrollOffset = 0
	}
}

// Update applies one tick of input. Rotation is applied before presses.
func (n *Navigator) Update(in Input, knob KnobSource) Effect {
	var eff Effect
	if in.Delta != 0 {
		eff.merge(n.rotate(in.Delta))
	}
	if in.LongPress {
		eff.merge(n.longPress())
	} else if in.ShortPress {
		eff.merge(n.shortPress(knob))
	}
	return eff
}

func (n *Navigator) rotate(delta int) Effect {
	offset := n.state.ScrollOffset
	var eff Effect

	switch n.state.Mode {
	case Navigate:
		for ; delta > 0; delta-- {
			n.NextParam()
		}
		for ; delta < 0; delta++ {
			n.PrevParam()
		}
		eff.Changed = true

	case EditValue:
		if p := n.params.At(n.state.Selected); p != nil {
			before := p.Value()
			p.Step(delta)
			eff.Edited = p.Value() != before
			eff.Changed = eff.Edited
		}

	case Submenu:
		item := (int(n.state.Item) + delta) % int(submenuItemCount)
		if item < 0 {
			item += int(submenuItemCount)
		}
		n.state.Item = SubmenuItem(item)
		eff.Changed = true

	case SubmenuEdit:
		n.editPending(delta)
		eff.Changed = true
	}

	eff.ScrollChanged = n.state.ScrollOffset != offset
	return eff
}

func (n *Navigator) editPending(delta int) {
	m := &n.state.Pending
	switch n.state.Item {
	case ItemCVSource:
		// Sources cycle Unmapped, 0 .. cvInputs-1.
		span := n.cvInputs + 1
		pos := (m.Source + 1 + delta) % span
		if pos < 0 {
			pos += span
		}
		m.Source = pos - 1
		m.Active = m.Source != param.Unmapped

	case ItemAttenuverter:
		v := m.Attenuverter + float64(delta)*attenuverterStep
		v = math.Round(v*100) / 100
		m.Attenuverter = math.Max(-1, math.Min(1, v))
	}
}

func (n *Navigator) shortPress(knob KnobSource) Effect {
	s := &n.state
	switch s.Mode {
	case Navigate:
		if n.params.At(s.Selected) == nil {
			return Effect{}
		}
		s.Mode = EditValue

	case EditValue:
		s.Mode = Navigate

	case Submenu:
		p := n.params.At(s.SubmenuParam)
		if p == nil {
			n.exitSubmenu()
			return Effect{Changed: true}
		}
		if s.Item == ItemCaptureOrigin {
			origin := p.Normalized()
			if knob != nil {
				if v, ok := knob(s.SubmenuParam); ok {
					origin = v
				}
			}
			p.CV.OriginOffset = math.Max(0, math.Min(1, origin))
			return Effect{MappingChanged: true, Changed: true}
		}
		s.Pending = p.CV
		s.Mode = SubmenuEdit

	case SubmenuEdit:
		if p := n.params.At(s.SubmenuParam); p != nil {
			p.CV = s.Pending
		}
		s.Mode = Submenu
		return Effect{MappingChanged: true, Changed: true}
	}
	return Effect{Changed: true}
}

func (n *Navigator) longPress() Effect {
	s := &n.state
	switch s.Mode {
	case Navigate, EditValue:
		if n.params.At(s.Selected) == nil {
			return Effect{}
		}
		s.Mode = Submenu
		s.SubmenuParam = s.Selected
		s.Item = ItemCVSource
		s.Pending = n.params.At(s.Selected).CV

	case Submenu, SubmenuEdit:
		n.exitSubmenu()
	}
	return Effect{Changed: true}
}

func (n *Navigator) exitSubmenu() {
	n.state.Mode = Navigate
	n.state.SubmenuParam = -1
	n.state.Item = ItemCVSource
	n.state.Pending = param.DefaultMapping()
}
