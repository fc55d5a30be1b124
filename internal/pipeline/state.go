// Package pipeline orchestrates per-well processing: raw read, preprocess,
// export, spike sort, QC. Execution is strictly sequential, one file and one
// well at a time.
package pipeline

// WellState is a well's position in the run state machine.
type WellState int

// Dry-run previews are not a recorded state: they mutate nothing, the
// ledger included.
const (
	StatePending WellState = iota
	StateSkipped
	StateRunning
	StateDone
	StateFailed
)

func (s WellState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSkipped:
		return "skipped"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
