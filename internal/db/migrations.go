package db

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

var reportsSchema = []string{
	`CREATE TABLE IF NOT EXISTS reports (
		id                  UUID PRIMARY KEY,
		code                TEXT NOT NULL,
		submitter_id        TEXT NOT NULL,
		latitude            DOUBLE PRECISION,
		longitude           DOUBLE PRECISION,
		address             TEXT,
		original_image_ref  TEXT NOT NULL,
		processed_image_ref TEXT,
		detection           JSONB NOT NULL DEFAULT 'null',
		has_detection       BOOLEAN NOT NULL DEFAULT FALSE,
		has_waste           BOOLEAN NOT NULL DEFAULT FALSE,
		total_waste_area    DOUBLE PRECISION NOT NULL DEFAULT 0,
		estimated_volume    DOUBLE PRECISION NOT NULL DEFAULT 0,
		waste_types         JSONB,
		severity            TEXT,
		status              TEXT NOT NULL,
		priority            TEXT NOT NULL,
		priority_overridden BOOLEAN NOT NULL DEFAULT FALSE,
		hide_from_public    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT chk_reports_status CHECK (status IN ('pending', 'in_progress', 'resolved', 'rejected')),
		CONSTRAINT chk_reports_priority CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
		CONSTRAINT chk_reports_location CHECK ((latitude IS NULL) = (longitude IS NULL))
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reports_code ON reports(code);`,
	`CREATE INDEX IF NOT EXISTS idx_reports_submitter_id ON reports(submitter_id);`,
	`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);`,
	`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC, id DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_reports_has_waste ON reports(has_waste) WHERE has_waste;`,
}

var codeSequence = []string{
	`CREATE SEQUENCE IF NOT EXISTS report_code_seq START 1;`,
	// Continue after codes issued before the sequence existed.
	`SELECT setval('report_code_seq', GREATEST(
		(SELECT COALESCE(MAX(NULLIF(regexp_replace(code, '\D', '', 'g'), '')::BIGINT), 0) FROM reports),
		1
	), (SELECT COUNT(*) > 0 FROM reports));`,
}

func execAll(tx *gorm.DB, stmts []string) error {
	for i, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("statement %d failed: %w", i+1, err)
		}
	}
	return nil
}

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "20260301_create_reports",
			Migrate: func(tx *gorm.DB) error {
				return execAll(tx, reportsSchema)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP TABLE IF EXISTS reports;`).Error
			},
		},
		{
			ID: "20260315_report_code_sequence",
			Migrate: func(tx *gorm.DB) error {
				return execAll(tx, codeSequence)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP SEQUENCE IF EXISTS report_code_seq;`).Error
			},
		},
	}
}

func RunMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
