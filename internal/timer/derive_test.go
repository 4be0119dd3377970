// ABOUTME: Tests for timer derivation
// ABOUTME: Covers countdown, overrun, emergency count-up, colors, and unknown reasons

package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDerive_ShortBreakNearEnd(t *testing.T) {
	info := Derive(ReasonShortBreak, base, base.Add(14*time.Minute))
	require.NotNil(t, info)

	assert.Equal(t, 60, info.RemainingTime)
	assert.False(t, info.IsNegative)
	assert.Equal(t, ColorRed, info.Color)
	assert.Equal(t, "01:00", info.DisplayTime)
}

func TestDerive_EmergencyCountsUp(t *testing.T) {
	info := Derive(ReasonEmergency, base, base.Add(125*time.Second))
	require.NotNil(t, info)

	assert.Equal(t, 125, info.RemainingTime)
	assert.False(t, info.IsNegative)
	assert.Equal(t, ColorGreen, info.Color)
	assert.Equal(t, "02:05", info.DisplayTime)
}

func TestDerive_LunchBreakOverrun(t *testing.T) {
	info := Derive(ReasonLunchBreak, base, base.Add(31*time.Minute))
	require.NotNil(t, info)

	assert.True(t, info.IsNegative)
	assert.Equal(t, ColorRed, info.Color)
	assert.Equal(t, "+01:00", info.DisplayTime)
}

func TestDerive_Colors(t *testing.T) {
	tests := []struct {
		name    string
		reason  string
		elapsed time.Duration
		want    Color
	}{
		{"lunch fresh is green", ReasonLunchBreak, 1 * time.Minute, ColorGreen},
		{"lunch above five minutes left is green", ReasonLunchBreak, 24 * time.Minute, ColorGreen},
		{"lunch at five minutes left is yellow", ReasonLunchBreak, 25 * time.Minute, ColorYellow},
		{"quick break mid is yellow", ReasonQuickBreak, 2 * time.Minute, ColorYellow},
		{"short break last minute is red", ReasonShortBreak, 14*time.Minute + 30*time.Second, ColorRed},
		{"quick break overrun is red", ReasonQuickBreak, 6 * time.Minute, ColorRed},
		{"emergency long is still green", ReasonEmergency, 2 * time.Hour, ColorGreen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Derive(tt.reason, base, base.Add(tt.elapsed))
			require.NotNil(t, info)
			assert.Equal(t, tt.want, info.Color)
		})
	}
}

func TestDerive_QuickBreakFull(t *testing.T) {
	info := Derive(ReasonQuickBreak, base, base)
	require.NotNil(t, info)

	assert.Equal(t, 300, info.RemainingTime)
	assert.Equal(t, "05:00", info.DisplayTime)
	assert.Equal(t, ColorYellow, info.Color, "a five minute allowance starts at the yellow boundary")
}

func TestDerive_UnknownReason(t *testing.T) {
	assert.Nil(t, Derive("MYSTERY_BREAK", base, base.Add(time.Minute)))
	assert.Nil(t, Derive("", base, base))
}

func TestDerive_EmergencyLongDisplay(t *testing.T) {
	info := Derive(ReasonEmergency, base, base.Add(101*time.Minute))
	require.NotNil(t, info)
	assert.Equal(t, "101:00", info.DisplayTime, "minutes are not truncated at an hour")
}
