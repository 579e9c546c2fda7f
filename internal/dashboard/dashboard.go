// Package dashboard derives the sidebar metrics from the ledger's lead count.
package dashboard

import "math"

const (
	// DefaultUnitValue is the revenue attributed to each captured lead, in dollars.
	DefaultUnitValue = 200
	// DefaultTarget is the lead count at which the progress bar is full.
	DefaultTarget = 100
)

// Snapshot is one rendering of the dashboard.
type Snapshot struct {
	Leads     int     `json:"leads"`
	Potential int     `json:"potential"`
	Progress  float64 `json:"progress"`
	Target    int     `json:"target"`
}

// Percent returns Progress scaled to 0..100 and rounded to the nearest whole
// percent for display.
func (s Snapshot) Percent() int {
	return int(math.Round(s.Progress * 100))
}

// Compute returns the dashboard for count leads. Non-positive unitValue and
// target fall back to the defaults. Progress is clamped to [0, 1].
func Compute(count, unitValue, target int) Snapshot {
	if unitValue <= 0 {
		unitValue = DefaultUnitValue
	}
	if target <= 0 {
		target = DefaultTarget
	}
	if count < 0 {
		count = 0
	}
	return Snapshot{
		Leads:     count,
		Potential: count * unitValue,
		Progress:  min(float64(count)/float64(target), 1.0),
		Target:    target,
	}
}
