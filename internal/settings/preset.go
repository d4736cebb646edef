package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"eurobrainz/internal/param"
)

const (
	presetExt     = ".yaml"
	maxPresetName = 32
)

// ErrInvalidPresetName is returned for names that are empty, too long, or
// contain characters other than letters, digits, '-' and '_'.
var ErrInvalidPresetName = errors.New("invalid preset name")

// Preset is a named snapshot of parameter values and CV mappings.
type Preset struct {
	Name   string        `yaml:"name"`
	Module string        `yaml:"module"`
	Params []PresetParam `yaml:"params"`
}

// PresetParam is one parameter entry of a preset, keyed by name.
type PresetParam struct {
	Name  string          `yaml:"name"`
	Value float64         `yaml:"value"`
	CV    param.CVMapping `yaml:"cv"`
}

// Capture builds a preset from the current table.
func Capture(name, module string, t *param.Table) Preset {
	pr := Preset{Name: name, Module: module}
	for i := 0; i < t.Len(); i++ {
		p := t.At(i)
		pr.Params = append(pr.Params, PresetParam{Name: p.Name, Value: p.Value(), CV: p.CV})
	}
	return pr
}

// Apply writes preset values into t by parameter name and returns how many
// parameters were matched. Values are clamped by the parameters themselves.
func (pr Preset) Apply(t *param.Table) int {
	n := 0
	for _, pp := range pr.Params {
		_, p := t.Lookup(pp.Name)
		if p == nil {
			continue
		}
		p.Set(pp.Value)
		p.CV = pp.CV
		p.CV.Attenuverter = clampBipolar(p.CV.Attenuverter)
		p.CV.OriginOffset = clamp01(p.CV.OriginOffset)
		n++
	}
	return n
}

// ValidatePresetName checks that name is safe to use as a file name.
func ValidatePresetName(name string) error {
	if name == "" || len(name) > maxPresetName {
		return fmt.Errorf("%w: %q", ErrInvalidPresetName, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidPresetName, name)
		}
	}
	return nil
}

// PresetStore keeps one YAML file per preset in a directory.
type PresetStore struct {
	dir string
}

// NewPresetStore returns a store rooted at dir.
func NewPresetStore(dir string) *PresetStore {
	return &PresetStore{dir: dir}
}

func (s *PresetStore) path(name string) string {
	return filepath.Join(s.dir, name+presetExt)
}

// Save writes pr under its name.
func (s *PresetStore) Save(pr Preset) error {
	if err := ValidatePresetName(pr.Name); err != nil {
		return err
	}
	b, err := yaml.Marshal(pr)
	if err != nil {
		return fmt.Errorf("encode preset yaml: %w", err)
	}
	return writeFileAtomic(s.path(pr.Name), b)
}

// Load reads the preset called name.
func (s *PresetStore) Load(name string) (Preset, error) {
	if err := ValidatePresetName(name); err != nil {
		return Preset{}, err
	}
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		return Preset{}, fmt.Errorf("read preset %q: %w", name, err)
	}
	var pr Preset
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&pr); err != nil {
		return Preset{}, fmt.Errorf("decode preset %q: %w", name, err)
	}
	pr.Name = name
	return pr, nil
}

// List returns the stored preset names in sorted order.
func (s *PresetStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), presetExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), presetExt)
		if ValidatePresetName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
