package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cognolabs/changedetection/internal/contextkeys"
	"github.com/cognolabs/changedetection/internal/domain/survey"
)

// ReviewJournal is an append-only audit of review decisions submitted through
// this dashboard. It records what was sent and what came back, including
// failed submissions, so a disputed review can be traced later.
type ReviewJournal struct {
	db *gorm.DB
}

func NewReviewJournal(db *gorm.DB) *ReviewJournal {
	return &ReviewJournal{db: db}
}

type ReviewRecord struct {
	ID              int64   `gorm:"primaryKey"`
	ChangeID        int64   `gorm:"not null"`
	Decision        string  `gorm:"not null"`
	ReviewedBy      string  `gorm:"not null"`
	ReviewNotes     *string
	Outcome         string `gorm:"not null"`
	ErrorMessage    *string
	BackendResponse datatypes.JSON `gorm:"type:jsonb"`
	TraceID         *string
	CreatedAt       time.Time
}

// RecordReview appends one submission attempt. change is the backend's
// updated report on success; submitErr the failure otherwise.
func (j *ReviewJournal) RecordReview(ctx context.Context, changeID int64, review survey.ReviewRequest, change *survey.Change, submitErr error) error {
	record := ReviewRecord{
		ChangeID:    changeID,
		Decision:    review.Status,
		ReviewedBy:  review.ReviewedBy,
		ReviewNotes: review.ReviewNotes,
		Outcome:     "success",
		CreatedAt:   time.Now(),
	}

	if submitErr != nil {
		record.Outcome = "failure"
		msg := submitErr.Error()
		record.ErrorMessage = &msg
	}

	if change != nil {
		if payload, err := json.Marshal(change); err == nil {
			record.BackendResponse = payload
		}
	}

	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		record.TraceID = &traceID
	}

	return j.db.WithContext(ctx).Create(&record).Error
}

// RecentReviews returns the latest journal entries, newest first.
func (j *ReviewJournal) RecentReviews(ctx context.Context, limit int) ([]ReviewRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var records []ReviewRecord
	err := j.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ReviewsForChange returns every recorded attempt for one change, oldest
// first.
func (j *ReviewJournal) ReviewsForChange(ctx context.Context, changeID int64) ([]ReviewRecord, error) {
	var records []ReviewRecord
	err := j.db.WithContext(ctx).
		Where("change_id = ?", changeID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}
