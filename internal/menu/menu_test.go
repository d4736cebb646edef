package menu

import (
	"fmt"
	"math"
	"testing"

	"eurobrainz/internal/param"
)

func testTable(n int) *param.Table {
	ps := make([]*param.Parameter, n)
	for i := range ps {
		ps[i] = param.NewContinuous(fmt.Sprintf("P%d", i), 0, 1, 0.5)
	}
	return param.NewTable(ps...)
}

func checkScroll(t *testing.T, s State) {
	t.Helper()
	if s.Selected < 0 || s.Selected >= s.Count {
		t.Fatalf("selected %d outside [0, %d)", s.Selected, s.Count)
	}
	if !(s.Selected-s.Visible < s.ScrollOffset && s.ScrollOffset <= s.Selected) {
		t.Fatalf("scroll offset %d does not frame selection %d (window %d)", s.ScrollOffset, s.Selected, s.Visible)
	}
}

func TestNavigator_ScrollScenario(t *testing.T) {
	n := New(testTable(9), 4, 4)

	for i := 0; i < 3; i++ {
		n.NextParam()
	}
	s := n.State()
	if s.Selected != 3 || s.ScrollOffset != 0 {
		t.Fatalf("after 3 moves: selected %d offset %d, want 3/0", s.Selected, s.ScrollOffset)
	}

	n.NextParam()
	s = n.State()
	if s.Selected != 4 || s.ScrollOffset != 1 {
		t.Fatalf("after 4 moves: selected %d offset %d, want 4/1", s.Selected, s.ScrollOffset)
	}
}

func TestNavigator_WrapsAtBothEnds(t *testing.T) {
	n := New(testTable(9), 4, 4)

	n.PrevParam()
	s := n.State()
	if s.Selected != 8 || s.ScrollOffset != 5 {
		t.Fatalf("prev from 0: selected %d offset %d, want 8/5", s.Selected, s.ScrollOffset)
	}

	n.NextParam()
	s = n.State()
	if s.Selected != 0 || s.ScrollOffset != 0 {
		t.Fatalf("next from last: selected %d offset %d, want 0/0", s.Selected, s.ScrollOffset)
	}

	for i := 0; i < 40; i++ {
		if i%3 == 0 {
			n.PrevParam()
		} else {
			n.NextParam()
		}
		checkScroll(t, n.State())
	}
}

func TestNavigator_MinimalScrollGoingUp(t *testing.T) {
	n := New(testTable(9), 4, 4)
	n.Select(6)
	if off := n.State().ScrollOffset; off != 3 {
		t.Fatalf("offset = %d, want 3", off)
	}
	n.PrevParam()
	n.PrevParam()
	n.PrevParam()
	if s := n.State(); s.Selected != 3 || s.ScrollOffset != 3 {
		t.Fatalf("selected %d offset %d, want 3/3", s.Selected, s.ScrollOffset)
	}
	n.PrevParam()
	if s := n.State(); s.Selected != 2 || s.ScrollOffset != 2 {
		t.Fatalf("selected %d offset %d, want 2/2", s.Selected, s.ScrollOffset)
	}
}

func TestNavigator_EmptyTable(t *testing.T) {
	n := New(param.NewTable(), 4, 4)
	n.NextParam()
	n.PrevParam()
	eff := n.Update(Input{ShortPress: true}, nil)
	if eff.Changed || n.State().Mode != Navigate {
		t.Errorf("empty table should ignore input, got %+v mode %v", eff, n.State().Mode)
	}
}

func TestNavigator_RotationReportsScroll(t *testing.T) {
	n := New(testTable(9), 4, 4)
	eff := n.Update(Input{Delta: 3}, nil)
	if eff.ScrollChanged {
		t.Errorf("scroll should not move within the window")
	}
	eff = n.Update(Input{Delta: 1}, nil)
	if !eff.ScrollChanged {
		t.Errorf("expected scroll change")
	}
}

func TestNavigator_EditValue(t *testing.T) {
	tbl := param.NewTable(
		param.NewContinuous("Timbre", 0, 1, 0.5),
		param.NewEnum("Bank", []string{"Synth", "Drum", "New"}, 0),
	)
	n := New(tbl, 4, 4)

	n.Update(Input{ShortPress: true}, nil)
	if n.State().Mode != EditValue {
		t.Fatalf("mode = %v, want edit_value", n.State().Mode)
	}
	eff := n.Update(Input{Delta: 5}, nil)
	if !eff.Edited {
		t.Errorf("expected edit effect")
	}
	if got := tbl.Value(0); math.Abs(got-0.55) > 1e-9 {
		t.Errorf("value = %v, want 0.55", got)
	}
	if n.State().Selected != 0 {
		t.Errorf("rotation in edit mode moved selection")
	}

	n.Update(Input{ShortPress: true}, nil)
	if n.State().Mode != Navigate {
		t.Fatalf("mode = %v, want navigate", n.State().Mode)
	}

	n.Update(Input{Delta: 1, ShortPress: true}, nil)
	n.Update(Input{Delta: 7}, nil)
	if got := tbl.At(1).Index(); got != 2 {
		t.Errorf("enum index = %d, want clamped 2", got)
	}
	eff = n.Update(Input{Delta: 1}, nil)
	if eff.Edited {
		t.Errorf("step at bound should not report an edit")
	}
}

func TestNavigator_SubmenuMappingEdit(t *testing.T) {
	tbl := testTable(3)
	n := New(tbl, 4, 4)
	n.NextParam()

	n.Update(Input{LongPress: true}, nil)
	s := n.State()
	if s.Mode != Submenu || s.SubmenuParam != 1 || s.Item != ItemCVSource {
		t.Fatalf("unexpected submenu state %+v", s)
	}

	// Pick CV source 2 (Unmapped -> 0 -> 1 -> 2).
	n.Update(Input{ShortPress: true}, nil)
	if n.State().Mode != SubmenuEdit {
		t.Fatalf("mode = %v, want submenu_edit", n.State().Mode)
	}
	n.Update(Input{Delta: 3}, nil)
	if tbl.At(1).CV.Source != param.Unmapped {
		t.Fatalf("mapping changed before commit")
	}
	eff := n.Update(Input{ShortPress: true}, nil)
	if !eff.MappingChanged {
		t.Errorf("expected mapping change on commit")
	}
	cv := tbl.At(1).CV
	if cv.Source != 2 || !cv.Active {
		t.Fatalf("committed mapping %+v, want source 2 active", cv)
	}
	if n.State().Mode != Submenu {
		t.Fatalf("mode = %v, want submenu", n.State().Mode)
	}

	// Attenuverter down by 0.25 then commit.
	n.Update(Input{Delta: 1}, nil)
	if n.State().Item != ItemAttenuverter {
		t.Fatalf("item = %v", n.State().Item)
	}
	n.Update(Input{ShortPress: true}, nil)
	n.Update(Input{Delta: -5}, nil)
	n.Update(Input{ShortPress: true}, nil)
	if got := tbl.At(1).CV.Attenuverter; math.Abs(got-0.75) > 1e-9 {
		t.Errorf("attenuverter = %v, want 0.75", got)
	}

	// Source wraps back to unmapped and deactivates.
	n.Update(Input{Delta: -1}, nil)
	n.Update(Input{ShortPress: true}, nil)
	n.Update(Input{Delta: 2}, nil)
	n.Update(Input{ShortPress: true}, nil)
	if cv := tbl.At(1).CV; cv.Source != param.Unmapped || cv.Active {
		t.Errorf("mapping %+v, want unmapped and inactive", cv)
	}
}

func TestNavigator_SubmenuEditLongPressDiscards(t *testing.T) {
	tbl := testTable(2)
	n := New(tbl, 4, 4)

	n.Update(Input{LongPress: true}, nil)
	n.Update(Input{ShortPress: true}, nil)
	n.Update(Input{Delta: 1}, nil)
	n.Update(Input{LongPress: true}, nil)

	s := n.State()
	if s.Mode != Navigate || s.SubmenuParam != -1 {
		t.Fatalf("state %+v, want navigate with no submenu", s)
	}
	if tbl.At(0).CV.Source != param.Unmapped {
		t.Errorf("discarded edit was committed: %+v", tbl.At(0).CV)
	}
}

func TestNavigator_CaptureOrigin(t *testing.T) {
	tbl := testTable(2)
	n := New(tbl, 4, 4)

	n.Update(Input{LongPress: true}, nil)
	n.Update(Input{Delta: -1}, nil)
	if n.State().Item != ItemCaptureOrigin {
		t.Fatalf("item = %v, want capture_origin", n.State().Item)
	}

	knob := func(i int) (float64, bool) {
		if i == 0 {
			return 0.27, true
		}
		return 0, false
	}
	eff := n.Update(Input{ShortPress: true}, knob)
	if !eff.MappingChanged {
		t.Errorf("expected mapping change")
	}
	if got := tbl.At(0).CV.OriginOffset; got != 0.27 {
		t.Errorf("origin = %v, want 0.27", got)
	}
	if n.State().Mode != Submenu {
		t.Errorf("capture should stay in submenu, got %v", n.State().Mode)
	}

	tbl.At(0).Set(0.8)
	n.Update(Input{ShortPress: true}, nil)
	if got := tbl.At(0).CV.OriginOffset; math.Abs(got-0.8) > 1e-12 {
		t.Errorf("origin fallback = %v, want 0.8", got)
	}

	n.Update(Input{LongPress: true}, nil)
	if n.State().Mode != Navigate {
		t.Errorf("long press should leave submenu")
	}
}
