package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"waste-patrol-service/internal/domain/detection"
)

func ValidateLocation(loc *Location) error {
	if loc == nil {
		return fmt.Errorf("%w: location coordinates are required", ErrValidation)
	}
	if math.IsNaN(loc.Latitude) || loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("%w: latitude %.6f is out of valid range [-90, 90]", ErrValidation, loc.Latitude)
	}
	if math.IsNaN(loc.Longitude) || loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("%w: longitude %.6f is out of valid range [-180, 180]", ErrValidation, loc.Longitude)
	}
	return nil
}

// New builds a pending report. ID and Code are assigned by the caller.
func New(submitterID string, loc *Location, images ImageRefs, hideFromPublic bool, now time.Time) (*Report, error) {
	submitterID = strings.TrimSpace(submitterID)
	if submitterID == "" {
		return nil, fmt.Errorf("%w: submitter is required", ErrValidation)
	}
	if err := ValidateLocation(loc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(images.Original) == "" {
		return nil, fmt.Errorf("%w: original image reference is required", ErrValidation)
	}

	l := *loc
	l.Address = strings.TrimSpace(l.Address)
	now = now.UTC()
	return &Report{
		SubmitterID:    submitterID,
		Location:       &l,
		Images:         images,
		Status:         StatusPending,
		Priority:       PriorityLow,
		HideFromPublic: hideFromPublic,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanAttachDetection reports whether a detection may still be attached,
// independent of the payload.
func (r *Report) CanAttachDetection() error {
	if r.Detection != nil {
		return fmt.Errorf("%w: detection already attached to report %s", ErrConflict, r.Code)
	}
	if r.Closed() {
		return fmt.Errorf("%w: report %s is %s", ErrConflict, r.Code, r.Status)
	}
	return nil
}

// AttachDetection records the detection result. It may happen once, and
// never after the report is closed.
func (r *Report) AttachDetection(res detection.Result, wasteTypes []string, th SeverityThresholds, now time.Time) error {
	if err := r.CanAttachDetection(); err != nil {
		return err
	}

	d := res
	d.Objects = append([]detection.Object(nil), res.Objects...)
	r.Detection = &d
	r.WasteTypes = wasteTypes
	r.Severity = th.Classify(res.TotalWasteArea, res.EstimatedVolume)
	if !r.PriorityOverridden {
		r.Priority = PriorityFor(r.Severity)
	}
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *Report) Transition(to Status, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if !r.Status.CanTransitionTo(to) {
		return &TransitionError{From: r.Status, To: to}
	}
	r.Status = to
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *Report) OverridePriority(p Priority, now time.Time) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, p)
	}
	if r.Closed() {
		return fmt.Errorf("%w: report %s is %s", ErrConflict, r.Code, r.Status)
	}
	r.Priority = p
	r.PriorityOverridden = true
	r.UpdatedAt = now.UTC()
	return nil
}

// CanDelete reports whether actor may remove r: only its submitter, only
// while it is still pending.
func (r *Report) CanDelete(actor Actor) bool {
	return actor.UserID != "" && actor.UserID == r.SubmitterID && r.Status == StatusPending
}

// VisibleTo reports whether actor may read r.
func (r *Report) VisibleTo(actor Actor) bool {
	return actor.IsAuthority() || (actor.UserID != "" && actor.UserID == r.SubmitterID)
}
