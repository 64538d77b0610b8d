package winback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsAreValid(t *testing.T) {
	presets, err := Presets()
	require.NoError(t, err)
	require.NotEmpty(t, presets)

	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.Name)
		_, err := ValidateSteps(p.Steps)
		assert.NoError(t, err, "preset %s", p.Name)
	}
	assert.Equal(t, []string{"aggressive", "gentle", "standard"}, names)
}

func TestPresetSteps(t *testing.T) {
	steps, err := PresetSteps("standard")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, 14, steps[0].DayOffset)
	assert.Equal(t, ChannelBoth, steps[1].Channel)
	assert.Equal(t, 20, steps[2].DiscountPercent)

	_, err = PresetSteps("nope")
	assert.True(t, errors.Is(err, ErrUnknownPreset))
}
