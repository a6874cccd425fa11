package report

import "fmt"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusResolved, StatusRejected:
		return true
	case StatusPending, StatusInProgress:
		return false
	}
	return false
}

// CanTransitionTo reports whether s -> next is an edge of the workflow:
// pending -> in_progress -> resolved, with rejection allowed from either
// open state.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusRejected
	case StatusInProgress:
		return next == StatusResolved || next == StatusRejected
	case StatusResolved, StatusRejected:
		return false
	}
	return false
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

// SeverityThresholds classify a detection; a result reaching either the
// area or the volume bound of a level gets that level.
type SeverityThresholds struct {
	MediumArea   float64
	MediumVolume float64
	HighArea     float64
	HighVolume   float64
}

func DefaultSeverityThresholds() SeverityThresholds {
	return SeverityThresholds{
		MediumArea:   100,
		MediumVolume: 1.5,
		HighArea:     250,
		HighVolume:   3.0,
	}
}

func (t SeverityThresholds) Classify(area, volume float64) Severity {
	switch {
	case area >= t.HighArea || volume >= t.HighVolume:
		return SeverityHigh
	case area >= t.MediumArea || volume >= t.MediumVolume:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
	}
	return p, nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// PriorityFor is the initial priority a detection of severity s receives.
func PriorityFor(s Severity) Priority {
	switch s {
	case SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	case SeverityLow:
		return PriorityLow
	}
	return PriorityLow
}
