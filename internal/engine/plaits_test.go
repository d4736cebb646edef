package engine

import (
	"math"
	"testing"
	"time"

	"eurobrainz/internal/settings"
)

type recordingVoice struct {
	calls   int
	last    Patch
	lastMod Modulations
}

func (v *recordingVoice) Render(p Patch, m Modulations, frames []Frame) {
	v.calls++
	v.last = p
	v.lastMod = m
	for i := range frames {
		frames[i] = Frame{Out: 16384, Aux: -16384}
	}
}

var _ Module = (*Plaits)(nil)

func TestPlaits_ParameterTable(t *testing.T) {
	p := NewPlaits(nil)
	tbl := p.Parameters()
	if tbl.Len() != PlaitsParamCount {
		t.Fatalf("table has %d params, want %d", tbl.Len(), PlaitsParamCount)
	}
	if got := tbl.Value(ParamLevel); got != 0.8 {
		t.Errorf("level default = %v, want 0.8", got)
	}
	if tbl.At(ParamFrequency).CV.Mapped() {
		t.Errorf("frequency should be unmapped; V/Oct is calibrated separately")
	}
	for _, i := range []int{ParamHarmonics, ParamTimbre, ParamMorph} {
		if cv := tbl.At(i).CV; cv.Mapped() {
			t.Errorf("%s starts mapped (%+v); its knob would be ignored", tbl.At(i).Name, cv)
		}
	}
}

func TestPlaits_CVReachesVoiceOnceThroughSettings(t *testing.T) {
	p := NewPlaits(nil)
	s := settings.Defaults()
	s.TimbreMod = 1
	s.MorphMod = 0.5
	p.SetSettings(s)
	p.SetCV([]float64{0.5, 0.5, 1, 0})

	patch, m := p.BuildPatch()
	if patch.Timbre != 0.5 || patch.Morph != 0.5 {
		t.Errorf("patch timbre/morph = %v/%v, want knob values 0.5/0.5", patch.Timbre, patch.Morph)
	}
	if m.Timbre != 1 || m.Morph != -0.5 {
		t.Errorf("mods timbre/morph = %v/%v, want 1/-0.5", m.Timbre, m.Morph)
	}
}

func TestPlaits_EngineLabelsFollowBank(t *testing.T) {
	p := NewPlaits(nil)
	tbl := p.Parameters()

	tbl.At(ParamEngine).Set(5)
	if got := tbl.At(ParamEngine).Format(); got != "WavTbl" {
		t.Errorf("synth engine 5 = %q, want WavTbl", got)
	}
	tbl.At(ParamBank).Set(float64(BankDrum))
	if got := tbl.At(ParamEngine).Format(); got != "Kick" {
		t.Errorf("drum engine 5 = %q, want Kick", got)
	}

	patch, _ := p.BuildPatch()
	if patch.Engine != 21 {
		t.Errorf("global engine = %d, want 21", patch.Engine)
	}

	tbl.At(ParamBank).Set(float64(BankNew))
	patch, _ = p.BuildPatch()
	if patch.Engine != 5 {
		t.Errorf("global engine = %d, want 5", patch.Engine)
	}
}

func TestPlaits_NoteUsesCalibration(t *testing.T) {
	p := NewPlaits(nil)
	s := settings.Defaults()
	s.ApplyCalibration(settings.Calibration{Offset: 0.4, Scale: 100})
	p.SetSettings(s)
	p.SetCV([]float64{0.5})

	patch, _ := p.BuildPatch()
	// Frequency knob centred, octave 4: C4 plus 0.1 * 100 semitones.
	if math.Abs(patch.Note-70) > 1e-9 {
		t.Errorf("note = %v, want 70", patch.Note)
	}

	s.Octave = 8
	p.SetSettings(s)
	patch, _ = p.BuildPatch()
	if math.Abs(patch.Note-(12+48+10)) > 1e-9 {
		t.Errorf("full-range note = %v, want 70", patch.Note)
	}
}

func TestPlaits_EnvelopeModesAndGate(t *testing.T) {
	p := NewPlaits(nil)
	s := settings.Defaults()

	s.Envelope = settings.EnvelopeDrone
	p.SetSettings(s)
	_, m := p.BuildPatch()
	if m.TriggerPatched || m.LevelPatched {
		t.Errorf("drone: %+v", m)
	}

	s.Envelope = settings.EnvelopeExternal
	p.SetSettings(s)
	p.SetCV([]float64{0.5, 0.5, 0.5, 0.5})
	p.ProcessGate(0, true)
	_, m = p.BuildPatch()
	if !m.TriggerPatched || !m.LevelPatched || m.Trigger != 1 {
		t.Errorf("external: %+v", m)
	}
	if want := 0.8 * 0.7 * 0.5; math.Abs(m.Level-want) > 1e-9 {
		t.Errorf("level = %v, want %v", m.Level, want)
	}

	p.ProcessGate(1, false)
	p.ProcessGate(0, false)
	if _, m = p.BuildPatch(); m.Trigger != 0 {
		t.Errorf("gate low but trigger %v", m.Trigger)
	}
}

func TestPlaits_ProcessRendersBlocks(t *testing.T) {
	v := &recordingVoice{}
	p := NewPlaits(v)
	if err := p.Init(48000); err != nil {
		t.Fatal(err)
	}

	out := [][]float32{make([]float32, 30), make([]float32, 30)}
	p.Process(nil, out)

	if v.calls != 3 {
		t.Errorf("voice called %d times, want 3 blocks", v.calls)
	}
	if out[0][29] != 0.5 || out[1][0] != -0.5 {
		t.Errorf("unexpected samples %v %v", out[0][29], out[1][0])
	}

	p.Process(nil, out[:1])
	if v.calls != 3 {
		t.Errorf("mono output should be ignored")
	}
}

func TestPlaits_LEDOutput(t *testing.T) {
	p := NewPlaits(nil)
	p.now = func() time.Time { return time.Unix(1000, 0) }
	p.Parameters().At(ParamEngine).Set(7)
	if got := p.CVOutput(1); got != 5.0 {
		t.Errorf("led = %v, want 5.0", got)
	}
	if got := p.CVOutput(0); got != 0 {
		t.Errorf("cv out 0 = %v, want 0", got)
	}
	if err := p.Init(0); err == nil {
		t.Errorf("expected error for zero sample rate")
	}
}

func TestPlaits_LEDBlinksBankAfterChange(t *testing.T) {
	p := NewPlaits(nil)
	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }
	p.Parameters().At(ParamEngine).Set(2)

	if got := p.CVOutput(1); got != 1.8 {
		t.Fatalf("led before bank change = %v, want 1.8", got)
	}

	// Drum bank blinks with a 500ms period.
	p.Parameters().At(ParamBank).Set(float64(BankDrum))
	cases := []struct {
		at   time.Duration
		want float64
	}{
		{0, 5.0},
		{200 * time.Millisecond, 5.0},
		{300 * time.Millisecond, 0},
		{700 * time.Millisecond, 5.0},
		{1900 * time.Millisecond, 0},
		{2 * time.Second, 1.8},
		{5 * time.Second, 1.8},
	}
	start := now
	for _, tc := range cases {
		now = start.Add(tc.at)
		if got := p.CVOutput(1); got != tc.want {
			t.Errorf("led at %v = %v, want %v", tc.at, got, tc.want)
		}
	}
}
