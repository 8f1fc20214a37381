package engine

import (
	"fmt"
	"math"
	"time"
)

// guardrailTolerance is the absolute return, in percentage points, a flat
// window may show before it is flagged.
const guardrailTolerance = 0.01

// CheckWindow asserts that a window which started flat, traded nothing and
// ended flat reports a zero return. Any window with trades or carried
// positions passes. A non-positive initial value fails without dividing.
func CheckWindow(trades int, initial, final float64, startPositions, endPositions int) (bool, string) {
	if initial <= 0 {
		return false, fmt.Sprintf("FAIL: cannot compute return, initial capital %.2f is not positive", initial)
	}
	ret := (final - initial) / initial * 100

	if startPositions != 0 || trades != 0 || endPositions != 0 {
		return true, fmt.Sprintf("PASS: return %.2f%% with %d trades, %d positions at start, %d at end",
			ret, trades, startPositions, endPositions)
	}
	if math.Abs(ret) <= guardrailTolerance {
		return true, fmt.Sprintf("PASS: no positions and no trades, return %.2f%%", ret)
	}
	return false, fmt.Sprintf("FAIL: no positions and no trades but return is %.4f%%, expected 0%%", ret)
}

// GuardrailCheck is the outcome of one window boundary check.
type GuardrailCheck struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Passed  bool      `json:"passed"`
	Message string    `json:"message"`
}

// window accumulates the state a guardrail check needs.
type window struct {
	start          time.Time
	startEquity    float64
	startPositions int
	startTrades    int
}

func (w window) close(end time.Time, equity float64, positions, trades int) GuardrailCheck {
	passed, msg := CheckWindow(trades-w.startTrades, w.startEquity, equity, w.startPositions, positions)
	return GuardrailCheck{Start: w.start, End: end, Passed: passed, Message: msg}
}
