// ABOUTME: Pure derivation of break countdown / emergency elapsed displays
// ABOUTME: No internal clock; callers re-invoke on their own tick with a fresh now

package timer

import (
	"fmt"
	"time"
)

// Color is the display color for a derived timer.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
)

// Stop reasons that drive a timer display. LUNCH_BREAK, SHORT_BREAK and
// QUICK_BREAK count down from a fixed allowance; EMERGENCY counts up without
// bound.
const (
	ReasonLunchBreak = "LUNCH_BREAK"
	ReasonShortBreak = "SHORT_BREAK"
	ReasonQuickBreak = "QUICK_BREAK"
	ReasonEmergency  = "EMERGENCY"
)

// Break allowances per bounded reason.
var breakDurations = map[string]time.Duration{
	ReasonLunchBreak: 30 * time.Minute,
	ReasonShortBreak: 15 * time.Minute,
	ReasonQuickBreak: 5 * time.Minute,
}

// Color thresholds for bounded reasons.
const (
	greenThreshold  = 300 * time.Second
	yellowThreshold = 60 * time.Second
)

// TimerInfo describes one derived timer display.
type TimerInfo struct {
	// RemainingTime is whole seconds: time left for bounded reasons
	// (negative once overrun), elapsed time for EMERGENCY.
	RemainingTime int    `json:"remainingTime"`
	IsNegative    bool   `json:"isNegative"`
	Color         Color  `json:"color"`
	DisplayTime   string `json:"displayTime"`
}

// Derive computes the timer display for a session stopped with the given
// reason at stoppedAt, as of now. Returns nil for reasons with no timer;
// it never fails. The function is pure: callers re-invoke it on a fixed
// external tick (typically one second).
func Derive(reason string, stoppedAt, now time.Time) *TimerInfo {
	elapsed := now.Sub(stoppedAt)

	if reason == ReasonEmergency {
		seconds := int(elapsed / time.Second)
		return &TimerInfo{
			RemainingTime: seconds,
			IsNegative:    false,
			Color:         ColorGreen,
			DisplayTime:   formatMMSS(seconds),
		}
	}

	duration, ok := breakDurations[reason]
	if !ok {
		return nil
	}

	remaining := duration - elapsed
	seconds := int(remaining / time.Second)
	negative := remaining < 0

	display := formatMMSS(abs(seconds))
	if negative {
		display = "+" + display
	}

	return &TimerInfo{
		RemainingTime: seconds,
		IsNegative:    negative,
		Color:         colorFor(remaining),
		DisplayTime:   display,
	}
}

// colorFor maps remaining time to a display color for bounded reasons.
func colorFor(remaining time.Duration) Color {
	switch {
	case remaining > greenThreshold:
		return ColorGreen
	case remaining > yellowThreshold:
		return ColorYellow
	default:
		return ColorRed
	}
}

// formatMMSS renders whole seconds as MM:SS.
func formatMMSS(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
