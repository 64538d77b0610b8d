package winback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStepsSortsAscending(t *testing.T) {
	in := []StepConfig{
		{DayOffset: 60, Channel: ChannelEmail, Template: "late"},
		{DayOffset: 14, Channel: ChannelSMS, Template: "early"},
		{DayOffset: 30, Channel: ChannelBoth, Template: "mid", DiscountPercent: 10},
	}
	out, err := ValidateSteps(in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []int{14, 30, 60}, []int{out[0].DayOffset, out[1].DayOffset, out[2].DayOffset})
	assert.Equal(t, 60, in[0].DayOffset, "input must not be reordered")
}

func TestValidateStepsRejectsDuplicateOffsets(t *testing.T) {
	_, err := ValidateSteps([]StepConfig{
		{DayOffset: 14, Channel: ChannelSMS, Template: "a"},
		{DayOffset: 14, Channel: ChannelEmail, Template: "b"},
	})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Problems, 1)
	assert.Contains(t, verr.Problems[0], "duplicates")
}

func TestValidateStepsCollectsEveryProblem(t *testing.T) {
	_, err := ValidateSteps([]StepConfig{
		{DayOffset: 0, Channel: "FAX", Template: "   ", DiscountPercent: -5},
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 4)
}

func TestValidateStepsBoundsDiscount(t *testing.T) {
	_, err := ValidateSteps([]StepConfig{{DayOffset: 14, Channel: ChannelSMS, Template: "x", DiscountPercent: 150}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Problems, 1)
	assert.Contains(t, verr.Problems[0], "discount_percent must be between 0 and 100")

	_, err = ValidateSteps([]StepConfig{{DayOffset: 14, Channel: ChannelSMS, Template: "x", DiscountPercent: 100}})
	assert.NoError(t, err)
}

func TestValidateStepsBoundsDayOffset(t *testing.T) {
	for _, offset := range []int{MaxDayOffset + 1, 200000} {
		_, err := ValidateSteps([]StepConfig{{DayOffset: offset, Channel: ChannelSMS, Template: "x"}})
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "offset %d", offset)
		assert.Contains(t, verr.Problems[0], "day_offset must be between 1 and")
	}

	_, err := ValidateSteps([]StepConfig{{DayOffset: MaxDayOffset, Channel: ChannelSMS, Template: "x"}})
	assert.NoError(t, err)
}

func TestValidateStepsRejectsEmptyList(t *testing.T) {
	_, err := ValidateSteps(nil)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"at least one step is required"}, verr.Problems)
}

func TestChannelIsCaseSensitive(t *testing.T) {
	_, err := ValidateSteps([]StepConfig{{DayOffset: 7, Channel: "sms", Template: "x"}})
	assert.Error(t, err)
}

func TestSettingsValidateNormalizes(t *testing.T) {
	s := &Settings{
		TenantID:    " org-1 ",
		Enabled:     true,
		BookingLink: " https://book.example.com ",
		Steps: []StepConfig{
			{DayOffset: 30, Channel: ChannelSMS, Template: "b"},
			{DayOffset: 14, Channel: ChannelSMS, Template: "a"},
		},
	}
	out, err := s.Validate()
	require.NoError(t, err)
	assert.Equal(t, "org-1", out.TenantID)
	assert.Equal(t, "https://book.example.com", out.BookingLink)
	assert.Equal(t, 14, out.Steps[0].DayOffset)
	assert.Equal(t, 30, s.Steps[0].DayOffset)
}

func TestSettingsValidateRequiresTenant(t *testing.T) {
	_, err := (&Settings{Steps: []StepConfig{{DayOffset: 1, Channel: ChannelSMS, Template: "x"}}}).Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}
