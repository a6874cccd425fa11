package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
)

func newMockRepository(t *testing.T) (*ReportRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	return NewReportRepository(db), mock
}

var reportColumns = []string{
	"id", "code", "submitter_id", "latitude", "longitude", "address",
	"original_image_ref", "processed_image_ref", "detection", "has_detection", "has_waste",
	"total_waste_area", "estimated_volume", "waste_types", "severity", "status", "priority",
	"priority_overridden", "hide_from_public", "created_at", "updated_at",
}

func TestReportRepository_Get(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	id := "7f0c4a52-3b8e-4e55-9d3a-1f9b2c0e8a11"
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "reports" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(reportColumns).AddRow(
				id, "WR-001", "citizen-1", 23.8103, 90.4125, "Dhanmondi, Dhaka",
				"originals/a.jpg", nil,
				[]byte(`{"detected_objects":[{"class_label":"plastic_bottle","confidence":0.85,"bounding_box":{"x":100,"y":150,"width":200,"height":300}}],"total_waste_area":150,"estimated_volume":2.5}`),
				true, true, 150.0, 2.5, []byte(`["plastic"]`), "medium", "pending", "medium",
				false, false, created, created,
			))

		r, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "WR-001", r.Code)
		assert.Equal(t, report.StatusPending, r.Status)
		assert.Equal(t, report.SeverityMedium, r.Severity)
		require.NotNil(t, r.Location)
		assert.Equal(t, 23.8103, r.Location.Latitude)
		assert.Equal(t, "Dhanmondi, Dhaka", r.Location.Address)
		require.NotNil(t, r.Detection)
		assert.Equal(t, 2.5, r.Detection.EstimatedVolume)
		assert.Equal(t, []detection.Object{{
			ClassLabel: "plastic_bottle",
			Confidence: 0.85,
			Box:        detection.BoundingBox{X: 100, Y: 150, Width: 200, Height: 300},
		}}, r.Detection.Objects)
		assert.Equal(t, []string{"plastic"}, r.WasteTypes)
		assert.Empty(t, r.Images.Processed)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "reports" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(reportColumns))

		_, err := repo.Get(ctx, id)
		assert.ErrorIs(t, err, report.ErrNotFound)
	})

	t.Run("MalformedID", func(t *testing.T) {
		_, err := repo.Get(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, report.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_UpdateLocksRow(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	id := "7f0c4a52-3b8e-4e55-9d3a-1f9b2c0e8a11"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "reports" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(reportColumns))
	mock.ExpectRollback()

	called := false
	_, err := repo.Update(ctx, id, func(*report.Report) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, report.ErrNotFound)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_DeleteCheckFailsRollsBack(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	id := "7f0c4a52-3b8e-4e55-9d3a-1f9b2c0e8a11"
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "reports" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(reportColumns).AddRow(
			id, "WR-001", "citizen-1", 23.8103, 90.4125, nil,
			"originals/a.jpg", nil, []byte(`null`), false, false, 0.0, 0.0, []byte(`null`), nil,
			"in_progress", "low", false, false, created, created,
		))
	mock.ExpectRollback()

	_, err := repo.Delete(ctx, id, func(r *report.Report) error {
		assert.Equal(t, report.StatusInProgress, r.Status)
		assert.Nil(t, r.Detection)
		return report.ErrForbidden
	})
	assert.ErrorIs(t, err, report.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepository_List(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "reports" WHERE submitter_id = \$1 AND status IN \(\$2,\$3\) AND has_waste = \$4 ORDER BY created_at DESC,id DESC`).
		WillReturnRows(sqlmock.NewRows(reportColumns).AddRow(
			"7f0c4a52-3b8e-4e55-9d3a-1f9b2c0e8a11", "WR-002", "citizen-1", 23.8203, 90.4225, "Gulshan, Dhaka",
			"originals/b.jpg", "processed/b.jpg",
			[]byte(`{"detected_objects":[],"total_waste_area":300,"estimated_volume":4.2}`),
			true, true, 300.0, 4.2, []byte(`["cardboard"]`), "high", "in_progress", "high",
			false, false, created, created,
		))

	list, err := repo.List(ctx, Filter{
		SubmitterID: "citizen-1",
		Statuses:    []report.Status{report.StatusPending, report.StatusInProgress},
		HasWaste:    true,
	}, Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "WR-002", list[0].Code)
	assert.Equal(t, "processed/b.jpg", list[0].Images.Processed)
	assert.True(t, list[0].HasWaste())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRecordRoundTrip(t *testing.T) {
	r := &report.Report{
		ID:          "7f0c4a52-3b8e-4e55-9d3a-1f9b2c0e8a11",
		Code:        "WR-010",
		SubmitterID: "citizen-1",
		Location:    &report.Location{Latitude: 1, Longitude: 2},
		Images:      report.ImageRefs{Original: "o"},
		Detection:   &detection.Result{TotalWasteArea: 0, EstimatedVolume: 1},
		Status:      report.StatusPending,
		Priority:    report.PriorityLow,
	}
	rec, err := toRecord(r)
	require.NoError(t, err)
	assert.True(t, rec.HasDetection)
	assert.False(t, rec.HasWaste)
	assert.Nil(t, rec.Severity)
	assert.Nil(t, rec.Address)

	back, err := rec.toDomain()
	require.NoError(t, err)
	assert.Equal(t, r.Location, back.Location)
	assert.Equal(t, r.Detection.EstimatedVolume, back.Detection.EstimatedVolume)
}
