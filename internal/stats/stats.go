package stats

import (
	"math"

	"waste-patrol-service/internal/domain/report"
)

// Summary partitions a report set by status; Pending+InProgress+Resolved+Rejected == Total.
type Summary struct {
	Total          int                     `json:"total"`
	Pending        int                     `json:"pending"`
	InProgress     int                     `json:"inProgress"`
	Resolved       int                     `json:"resolved"`
	Rejected       int                     `json:"rejected"`
	Unprocessed    int                     `json:"unprocessed"`
	BySeverity     map[report.Severity]int `json:"bySeverity"`
	ByPriority     map[report.Priority]int `json:"byPriority"`
	ResolutionRate int                     `json:"resolutionRate"`
}

func Summarize(reports []report.Report) Summary {
	s := Summary{
		BySeverity: make(map[report.Severity]int, len(report.Severities)),
		ByPriority: make(map[report.Priority]int, len(report.Priorities)),
	}
	for _, sev := range report.Severities {
		s.BySeverity[sev] = 0
	}
	for _, p := range report.Priorities {
		s.ByPriority[p] = 0
	}

	for i := range reports {
		r := &reports[i]
		s.Total++
		switch r.Status {
		case report.StatusPending:
			s.Pending++
		case report.StatusInProgress:
			s.InProgress++
		case report.StatusResolved:
			s.Resolved++
		case report.StatusRejected:
			s.Rejected++
		}
		if r.Severity == "" {
			s.Unprocessed++
		} else {
			s.BySeverity[r.Severity]++
		}
		s.ByPriority[r.Priority]++
	}

	if s.Total > 0 {
		s.ResolutionRate = int(math.Round(float64(s.Resolved) / float64(s.Total) * 100))
	}
	return s
}
