package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

type ReportRecord struct {
	ID                 string `gorm:"primaryKey;type:uuid"`
	Code               string `gorm:"not null;uniqueIndex"`
	SubmitterID        string `gorm:"not null;index"`
	Latitude           *float64
	Longitude          *float64
	Address            *string
	OriginalImageRef   string `gorm:"not null"`
	ProcessedImageRef  *string
	Detection          datatypes.JSON              `gorm:"type:jsonb"`
	HasDetection       bool                        `gorm:"not null"`
	HasWaste           bool                        `gorm:"not null;index"`
	TotalWasteArea     float64                     `gorm:"not null"`
	EstimatedVolume    float64                     `gorm:"not null"`
	WasteTypes         datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Severity           *string
	Status             string `gorm:"not null"`
	Priority           string `gorm:"not null"`
	PriorityOverridden bool   `gorm:"not null"`
	HideFromPublic     bool   `gorm:"not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ReportRecord) TableName() string {
	return "reports"
}

func toRecord(r *report.Report) (ReportRecord, error) {
	rec := ReportRecord{
		ID:                 r.ID,
		Code:               r.Code,
		SubmitterID:        r.SubmitterID,
		OriginalImageRef:   r.Images.Original,
		Detection:          datatypes.JSON("null"),
		WasteTypes:         datatypes.JSONSlice[string](r.WasteTypes),
		Status:             string(r.Status),
		Priority:           string(r.Priority),
		PriorityOverridden: r.PriorityOverridden,
		HideFromPublic:     r.HideFromPublic,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}

	if r.Location != nil {
		lat, lng := r.Location.Latitude, r.Location.Longitude
		rec.Latitude = &lat
		rec.Longitude = &lng
		if r.Location.Address != "" {
			addr := r.Location.Address
			rec.Address = &addr
		}
	}
	if r.Images.Processed != "" {
		p := r.Images.Processed
		rec.ProcessedImageRef = &p
	}
	if r.Severity != "" {
		sev := string(r.Severity)
		rec.Severity = &sev
	}
	if r.Detection != nil {
		raw, err := json.Marshal(r.Detection)
		if err != nil {
			return ReportRecord{}, fmt.Errorf("failed to encode detection: %w", err)
		}
		rec.Detection = datatypes.JSON(raw)
		rec.HasDetection = true
		rec.HasWaste = r.Detection.HasWaste()
		rec.TotalWasteArea = r.Detection.TotalWasteArea
		rec.EstimatedVolume = r.Detection.EstimatedVolume
	}
	return rec, nil
}

func (rec *ReportRecord) toDomain() (*report.Report, error) {
	r := &report.Report{
		ID:                 rec.ID,
		Code:               rec.Code,
		SubmitterID:        rec.SubmitterID,
		Images:             report.ImageRefs{Original: rec.OriginalImageRef},
		Status:             report.Status(rec.Status),
		Priority:           report.Priority(rec.Priority),
		PriorityOverridden: rec.PriorityOverridden,
		HideFromPublic:     rec.HideFromPublic,
		CreatedAt:          rec.CreatedAt.UTC(),
		UpdatedAt:          rec.UpdatedAt.UTC(),
	}
	if len(rec.WasteTypes) > 0 {
		r.WasteTypes = []string(rec.WasteTypes)
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		r.Location = &report.Location{Latitude: *rec.Latitude, Longitude: *rec.Longitude}
		if rec.Address != nil {
			r.Location.Address = *rec.Address
		}
	}
	if rec.ProcessedImageRef != nil {
		r.Images.Processed = *rec.ProcessedImageRef
	}
	if rec.Severity != nil {
		r.Severity = report.Severity(*rec.Severity)
	}
	if rec.HasDetection {
		var d detection.Result
		if err := json.Unmarshal(rec.Detection, &d); err != nil {
			return nil, fmt.Errorf("failed to decode detection of report %s: %w", rec.ID, err)
		}
		r.Detection = &d
	}
	return r, nil
}

func (s *ReportRepository) Insert(ctx context.Context, r *report.Report) error {
	rec, err := toRecord(r)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, r.Code)
		}
		return err
	}
	return nil
}

func (s *ReportRepository) Get(ctx context.Context, id string) (*report.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}

	var rec ReportRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain()
}

// lockForUpdate loads the row with SELECT ... FOR UPDATE inside tx.
func lockForUpdate(tx *gorm.DB, id string) (*report.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}
	var rec ReportRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec.toDomain()
}

func (s *ReportRepository) Update(ctx context.Context, id string, fn func(*report.Report) error) (*report.Report, error) {
	var updated *report.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := lockForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		rec, err := toRecord(r)
		if err != nil {
			return err
		}
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ReportRepository) Delete(ctx context.Context, id string, check func(*report.Report) error) (*report.Report, error) {
	var deleted *report.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := lockForUpdate(tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(r.Clone()); err != nil {
				return err
			}
		}
		if err := tx.Where("id = ?", id).Delete(&ReportRecord{}).Error; err != nil {
			return err
		}
		deleted = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// List runs as a single statement, so the result is a consistent snapshot.
func (s *ReportRepository) List(ctx context.Context, f Filter, p Page) ([]report.Report, error) {
	query := s.db.WithContext(ctx).Model(&ReportRecord{})

	if f.SubmitterID != "" {
		query = query.Where("submitter_id = ?", f.SubmitterID)
	}
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", statusStrings(f.Statuses))
	}
	if f.PublicOnly {
		query = query.Where("hide_from_public = ?", false)
	}
	if f.HasWaste {
		query = query.Where("has_waste = ?", true)
	}
	if f.Bound != nil {
		query = query.
			Where("latitude BETWEEN ? AND ?", f.Bound.Min.Lat(), f.Bound.Max.Lat()).
			Where("longitude BETWEEN ? AND ?", f.Bound.Min.Lon(), f.Bound.Max.Lon())
	}

	query = query.Order("created_at DESC").Order("id DESC")

	if p.Limit > 0 {
		query = query.Limit(p.Limit)
	}
	if p.Offset > 0 {
		query = query.Offset(p.Offset)
	}

	var records []ReportRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	result := make([]report.Report, 0, len(records))
	for i := range records {
		r, err := records[i].toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, nil
}

// SequenceAllocator hands out report code numbers from a postgres sequence.
type SequenceAllocator struct {
	db       *gorm.DB
	sequence string
}

func NewSequenceAllocator(db *gorm.DB) *SequenceAllocator {
	return &SequenceAllocator{db: db, sequence: "report_code_seq"}
}

func (a *SequenceAllocator) Next(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Raw("SELECT nextval(?::regclass)", a.sequence).Scan(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to allocate report code: %w", err)
	}
	return n, nil
}
