package models

// Progress is a snapshot pushed to the caller while an operation runs.
type Progress struct {
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"` // 0..100
	Message string  `json:"message"`
}

// ProgressFunc receives progress snapshots. A nil ProgressFunc is always
// legal; operations must not assume a sink is attached.
type ProgressFunc func(Progress)

// Report calls the sink if one is attached.
func (f ProgressFunc) Report(phase string, percent float64, msg string) {
	if f != nil {
		f(Progress{Phase: phase, Percent: percent, Message: msg})
	}
}
