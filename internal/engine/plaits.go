package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"eurobrainz/internal/param"
	"eurobrainz/internal/settings"
)

// Parameter indices of the Plaits table.
const (
	ParamBank = iota
	ParamEngine
	ParamHarmonics
	ParamTimbre
	ParamMorph
	ParamFrequency
	ParamLPGColour
	ParamLPGDecay
	ParamLevel

	PlaitsParamCount
)

// CV input roles.
const (
	CVVOct = iota
	CVHarmonics
	CVTimbre
	CVMorph

	CVInputs
)

// BlockSize is the number of frames rendered per voice call.
const BlockSize = 12

// EnginesPerBank is the number of engines selectable within a bank.
const EnginesPerBank = 8

const ledOutput = 1

// Bank groups engines.
type Bank int

const (
	BankSynth Bank = iota
	BankDrum
	BankNew

	BankCount
)

var bankNames = []string{"Synth", "Drum", "New"}

var engineNames = [BankCount][EnginesPerBank]string{
	BankSynth: {"VA", "WavShp", "FM", "Grain", "Addtv", "WavTbl", "Chord", "Speech"},
	BankDrum:  {"Swarm", "Noise", "Partcl", "String", "Modal", "Kick", "Snare", "HiHat"},
	BankNew:   {"VA VCF", "PhasDs", "6-Op 1", "6-Op 2", "6-Op 3", "WavTrn", "StrMch", "Chip"},
}

// ledBrightness is the LED voltage per engine slot.
var ledBrightness = [EnginesPerBank]float64{1.4, 1.7, 1.8, 2.1, 2.3, 2.6, 3.1, 5.0}

// After a bank change the LED blinks at a per-bank rate for bankIndication.
var bankPulsePeriod = [BankCount]time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}

const (
	bankIndication = 2 * time.Second
	ledFull        = 5.0
)

// EngineName returns the short label of an engine within a bank.
func EngineName(b Bank, i int) string {
	if b < 0 || b >= BankCount || i < 0 || i >= EnginesPerBank {
		return ""
	}
	return engineNames[b][i]
}

// GlobalEngine maps a bank-relative engine to the voice engine number.
func GlobalEngine(b Bank, i int) int {
	switch b {
	case BankSynth:
		return 8 + i
	case BankDrum:
		return 16 + i
	case BankNew:
		return i
	default:
		return 8
	}
}

// Patch is the slow-moving voice configuration.
type Patch struct {
	Engine    int
	Note      float64
	Harmonics float64
	Timbre    float64
	Morph     float64

	FrequencyModAmount float64
	TimbreModAmount    float64
	MorphModAmount     float64

	Decay     float64
	LPGColour float64
}

// Modulations carries per-block external modulation.
type Modulations struct {
	Frequency float64
	Harmonics float64
	Timbre    float64
	Morph     float64
	Trigger   float64
	Level     float64

	TimbrePatched  bool
	MorphPatched   bool
	TriggerPatched bool
	LevelPatched   bool
}

// Plaits binds a macro-oscillator voice to a nine-entry parameter table.
type Plaits struct {
	params *param.Table
	voice  Voice

	settings atomic.Pointer[settings.Settings]
	cv       atomic.Pointer[[CVInputs]float64]
	gate     atomic.Bool

	sampleRate float64
	frames     []Frame

	now func() time.Time
	led struct {
		mu     sync.Mutex
		primed bool
		bank   Bank
		since  time.Time
	}
}

// NewPlaits builds the binding and its parameter table. A nil voice renders silence.
func NewPlaits(v Voice) *Plaits {
	if v == nil {
		v = SilentVoice{}
	}
	p := &Plaits{voice: v, frames: make([]Frame, BlockSize), now: time.Now}
	p.params = newPlaitsTable()

	s := settings.Defaults()
	p.settings.Store(&s)
	cv := [CVInputs]float64{0.5, 0.5, 0.5, 0.5}
	p.cv.Store(&cv)
	return p
}

func newPlaitsTable() *param.Table {
	bank := param.NewEnum("Bank", bankNames, int(BankSynth))
	eng := param.NewEnum("Engine", engineNames[BankSynth][:], 0)
	eng.LabelFn = func(i int) string { return EngineName(Bank(bank.Index()), i) }

	// Harmonics, Timbre and Morph CV reach the voice through the settings
	// attenuverters, so their rows start unmapped and follow the knobs.
	return param.NewTable(
		bank,
		eng,
		param.NewContinuous("Harmonics", 0, 1, 0.5),
		param.NewContinuous("Timbre", 0, 1, 0.5),
		param.NewContinuous("Morph", 0, 1, 0.5),
		param.NewContinuous("Frequency", 0, 1, 0.5),
		param.NewContinuous("LPG Colour", 0, 1, 0.5),
		param.NewContinuous("LPG Decay", 0, 1, 0.5),
		param.NewContinuous("Level", 0, 1, 0.8),
	)
}

func (p *Plaits) Name() string { return "plaits" }

func (p *Plaits) Init(sampleRate float64) error {
	if sampleRate <= 0 {
		return errors.New("sample rate must be > 0")
	}
	p.sampleRate = sampleRate
	return nil
}

// SampleRate returns the rate passed to Init.
func (p *Plaits) SampleRate() float64 { return p.sampleRate }

func (p *Plaits) Parameters() *param.Table { return p.params }

func (p *Plaits) ProcessGate(index int, high bool) {
	if index == 0 {
		p.gate.Store(high)
	}
}

// CVOutput reports the LED voltage on output 1; other outputs are 0. The LED
// shows the engine slot as brightness, and blinks the bank for a while after
// the bank changes.
func (p *Plaits) CVOutput(index int) float64 {
	if index != ledOutput {
		return 0
	}
	now := p.now()
	b := p.Bank()

	p.led.mu.Lock()
	if !p.led.primed {
		p.led.primed = true
		p.led.bank = b
	} else if b != p.led.bank {
		p.led.bank = b
		p.led.since = now
	}
	since := p.led.since
	p.led.mu.Unlock()

	if !since.IsZero() && b >= 0 && b < BankCount {
		if elapsed := now.Sub(since); elapsed < bankIndication {
			period := bankPulsePeriod[b]
			if elapsed%period < period/2 {
				return ledFull
			}
			return 0
		}
	}

	i := p.params.At(ParamEngine).Index()
	if i < 0 || i >= EnginesPerBank {
		return 0
	}
	return ledBrightness[i]
}

// SetSettings publishes a settings snapshot to the audio path.
func (p *Plaits) SetSettings(s settings.Settings) {
	p.settings.Store(&s)
}

// SetCV publishes filtered CV readings to the audio path.
func (p *Plaits) SetCV(cv []float64) {
	var snap [CVInputs]float64
	for i := range snap {
		snap[i] = 0.5
		if i < len(cv) {
			snap[i] = cv[i]
		}
	}
	p.cv.Store(&snap)
}

// Bank returns the selected bank.
func (p *Plaits) Bank() Bank { return Bank(p.params.At(ParamBank).Index()) }

// BuildPatch derives the voice patch and modulations from the current
// parameters, settings and CV snapshot.
func (p *Plaits) BuildPatch() (Patch, Modulations) {
	s := *p.settings.Load()
	cv := *p.cv.Load()
	t := p.params

	patch := Patch{
		Engine:             GlobalEngine(p.Bank(), t.At(ParamEngine).Index()),
		Harmonics:          t.Value(ParamHarmonics),
		Timbre:             t.Value(ParamTimbre),
		Morph:              t.Value(ParamMorph),
		FrequencyModAmount: s.FMAmount,
		TimbreModAmount:    s.TimbreMod,
		MorphModAmount:     s.MorphMod,
		Decay:              t.Value(ParamLPGDecay),
		LPGColour:          t.Value(ParamLPGColour),
	}

	freq := t.Value(ParamFrequency)
	voct := (cv[CVVOct] - s.VOctOffset) * s.VOctScale
	if s.Octave < 8 {
		patch.Note = s.Note(cv[CVVOct]) + (freq*2-1)*7
	} else {
		patch.Note = 12 + freq*96 + voct
	}

	mods := Modulations{
		Timbre:        bipolar(cv[CVTimbre]) * s.TimbreMod,
		Morph:         bipolar(cv[CVMorph]) * s.MorphMod,
		TimbrePatched: s.TimbreMod != 0,
		MorphPatched:  s.MorphMod != 0,
		Level:         t.Value(ParamLevel) * s.OutputLevel,
	}
	switch s.Envelope {
	case settings.EnvelopeExternal:
		mods.TriggerPatched = true
		mods.LevelPatched = true
		mods.Level *= cv[CVHarmonics]
	case settings.EnvelopePing:
		mods.TriggerPatched = true
		mods.Harmonics = bipolar(cv[CVHarmonics]) * s.HarmonicsMod
	default:
		mods.Harmonics = bipolar(cv[CVHarmonics]) * s.HarmonicsMod
	}
	if p.gate.Load() {
		mods.Trigger = 1
	}
	return patch, mods
}

// Process renders stereo audio into out[0] and out[1].
func (p *Plaits) Process(_, out [][]float32) {
	if len(out) < 2 {
		return
	}
	n := min(len(out[0]), len(out[1]))
	patch, mods := p.BuildPatch()

	for i := 0; i < n; i += BlockSize {
		size := min(BlockSize, n-i)
		frames := p.frames[:size]
		p.voice.Render(patch, mods, frames)
		for j, f := range frames {
			out[0][i+j] = float32(f.Out) / 32768
			out[1][i+j] = float32(f.Aux) / 32768
		}
	}
}

func bipolar(v float64) float64 { return (v - 0.5) * 2 }
