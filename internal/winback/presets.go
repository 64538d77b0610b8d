package winback

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPreset is returned when a preset name is not defined.
var ErrUnknownPreset = errors.New("winback: unknown preset")

//go:embed presets.yaml
var presetsYAML []byte

// Preset is a named step sequence.
type Preset struct {
	Name        string       `json:"name" yaml:"-"`
	Description string       `json:"description" yaml:"description"`
	Steps       []StepConfig `json:"steps" yaml:"steps"`
}

// Presets returns the built-in presets sorted by name.
func Presets() ([]Preset, error) {
	byName, err := parsePresets(presetsYAML)
	if err != nil {
		return nil, err
	}
	out := make([]Preset, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PresetSteps returns a copy of the named preset's steps.
func PresetSteps(name string) ([]StepConfig, error) {
	byName, err := parsePresets(presetsYAML)
	if err != nil {
		return nil, err
	}
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return append([]StepConfig(nil), p.Steps...), nil
}

func parsePresets(data []byte) (map[string]Preset, error) {
	var byName map[string]Preset
	if err := yaml.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("winback: parse presets: %w", err)
	}
	for name, p := range byName {
		p.Name = name
		byName[name] = p
	}
	return byName, nil
}
