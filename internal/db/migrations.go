package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS review_records (
		id               BIGSERIAL PRIMARY KEY,
		change_id        BIGINT NOT NULL,
		decision         TEXT NOT NULL,
		reviewed_by      TEXT NOT NULL,
		review_notes     TEXT,
		outcome          TEXT NOT NULL,
		error_message    TEXT,
		backend_response JSONB,
		trace_id         TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_review_records_change_id ON review_records(change_id);`,
	`CREATE INDEX IF NOT EXISTS idx_review_records_created_at ON review_records(created_at);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
