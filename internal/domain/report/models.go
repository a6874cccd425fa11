package report

import (
	"time"

	"waste-patrol-service/internal/domain/detection"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// ImageRefs are blob store keys; the bytes live in the blob store.
type ImageRefs struct {
	Original  string `json:"original_image_ref"`
	Processed string `json:"processed_image_ref,omitempty"`
}

type Report struct {
	ID                 string            `json:"id"`
	Code               string            `json:"report_code"`
	SubmitterID        string            `json:"submitter_id"`
	Location           *Location         `json:"location,omitempty"`
	Images             ImageRefs         `json:"images"`
	Detection          *detection.Result `json:"detection,omitempty"`
	WasteTypes         []string          `json:"waste_types,omitempty"`
	Severity           Severity          `json:"severity_level,omitempty"`
	Status             Status            `json:"status"`
	Priority           Priority          `json:"priority"`
	PriorityOverridden bool              `json:"priority_overridden,omitempty"`
	HideFromPublic     bool              `json:"hide_from_public,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	if r.Detection != nil {
		d := *r.Detection
		d.Objects = append([]detection.Object(nil), r.Detection.Objects...)
		c.Detection = &d
	}
	if r.WasteTypes != nil {
		c.WasteTypes = append([]string(nil), r.WasteTypes...)
	}
	return &c
}

func (r *Report) Closed() bool {
	return r.Status.Terminal()
}

func (r *Report) HasWaste() bool {
	return r.Detection != nil && r.Detection.HasWaste()
}

type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAuthority Role = "authority"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleAuthority:
		return true
	}
	return false
}

// Actor is the verified caller of an operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (a Actor) IsAuthority() bool {
	return a.Role == RoleAuthority
}

// Summary is the listing view of a report.
type Summary struct {
	ID              string    `json:"id"`
	Code            string    `json:"report_code"`
	Location        *Location `json:"location,omitempty"`
	Status          Status    `json:"status"`
	Priority        Priority  `json:"priority"`
	Severity        Severity  `json:"severity_level,omitempty"`
	WasteTypes      []string  `json:"waste_types,omitempty"`
	ObjectCount     int       `json:"object_count"`
	TotalWasteArea  float64   `json:"total_waste_area"`
	EstimatedVolume float64   `json:"estimated_volume"`
	Processed       bool      `json:"processed"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r *Report) Summary() Summary {
	s := Summary{
		ID:         r.ID,
		Code:       r.Code,
		Location:   r.Location,
		Status:     r.Status,
		Priority:   r.Priority,
		Severity:   r.Severity,
		WasteTypes: r.WasteTypes,
		CreatedAt:  r.CreatedAt,
	}
	if r.Detection != nil {
		s.Processed = true
		s.ObjectCount = len(r.Detection.Objects)
		s.TotalWasteArea = r.Detection.TotalWasteArea
		s.EstimatedVolume = r.Detection.EstimatedVolume
	}
	return s
}
