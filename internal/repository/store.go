package repository

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"waste-patrol-service/internal/domain/report"
)

var ErrDuplicateCode = errors.New("duplicate report code")

// Store persists reports. Update and Delete run their callback on a private
// copy of the record while holding that record's lock, and write the result
// only if the callback succeeds. Operations on different ids do not block
// each other.
type Store interface {
	Insert(ctx context.Context, r *report.Report) error
	Get(ctx context.Context, id string) (*report.Report, error)
	Update(ctx context.Context, id string, fn func(*report.Report) error) (*report.Report, error)
	Delete(ctx context.Context, id string, check func(*report.Report) error) (*report.Report, error)
	List(ctx context.Context, f Filter, p Page) ([]report.Report, error)
}

type Filter struct {
	SubmitterID string
	Statuses    []report.Status
	// PublicOnly excludes reports whose submitter opted out of public display.
	PublicOnly bool
	// HasWaste keeps reports with a detection covering a non-zero area.
	HasWaste bool
	Bound    *orb.Bound
}

func (f Filter) Match(r *report.Report) bool {
	if f.SubmitterID != "" && r.SubmitterID != f.SubmitterID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PublicOnly && r.HideFromPublic {
		return false
	}
	if f.HasWaste && !r.HasWaste() {
		return false
	}
	if f.Bound != nil {
		if r.Location == nil || !f.Bound.Contains(orb.Point{r.Location.Longitude, r.Location.Latitude}) {
			return false
		}
	}
	return true
}

// Page selects a window of the newest-first ordering. Limit 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

func statusStrings(statuses []report.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
