package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
)

const defaultAttemptBatch = 500

type attemptRow struct {
	ID               string    `db:"id"`
	RunID            string    `db:"run_id"`
	StudentID        string    `db:"student_id"`
	CourseID         string    `db:"course_id"`
	CourseCode       string    `db:"course_code"`
	Decision         string    `db:"decision"`
	StartedAt        time.Time `db:"started_at"`
	TotalMs          float64   `db:"total_ms"`
	CacheMs          float64   `db:"cache_ms"`
	ReservationMs    float64   `db:"reservation_ms"`
	PersistenceMs    float64   `db:"persistence_ms"`
	CacheHit         bool      `db:"cache_hit"`
	RetryCount       int       `db:"retry_count"`
	IsHot            bool      `db:"is_hot"`
	WaitlistPosition int       `db:"waitlist_position"`
}

// AttemptRepository bulk-inserts registration attempts.
type AttemptRepository struct {
	db        *sqlx.DB
	batchSize int
}

// NewAttemptRepository constructs the repository. batchSize bounds rows per INSERT.
func NewAttemptRepository(db *sqlx.DB, batchSize int) *AttemptRepository {
	if batchSize <= 0 {
		batchSize = defaultAttemptBatch
	}
	return &AttemptRepository{db: db, batchSize: batchSize}
}

// InsertBatch writes every attempt inside one transaction.
func (r *AttemptRepository) InsertBatch(ctx context.Context, runID string, attempts []models.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	const query = `INSERT INTO registration_attempts (id, run_id, student_id, course_id, course_code, decision, started_at, total_ms, cache_ms, reservation_ms, persistence_ms, cache_hit, retry_count, is_hot, waitlist_position)
VALUES (:id, :run_id, :student_id, :course_id, :course_code, :decision, :started_at, :total_ms, :cache_ms, :reservation_ms, :persistence_ms, :cache_hit, :retry_count, :is_hot, :waitlist_position)`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attempts tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(attempts); start += r.batchSize {
		end := min(start+r.batchSize, len(attempts))
		rows := make([]attemptRow, 0, end-start)
		for _, a := range attempts[start:end] {
			rows = append(rows, toAttemptRow(runID, a))
		}
		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return fmt.Errorf("insert attempts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attempts: %w", err)
	}
	return nil
}

func toAttemptRow(runID string, a models.Attempt) attemptRow {
	return attemptRow{
		ID:               a.ID,
		RunID:            runID,
		StudentID:        a.StudentID,
		CourseID:         a.CourseID,
		CourseCode:       a.CourseCode,
		Decision:         string(a.Decision),
		StartedAt:        a.StartedAt,
		TotalMs:          models.Millis(a.Total),
		CacheMs:          models.Millis(a.Phases.CacheLookup),
		ReservationMs:    models.Millis(a.Phases.Reservation),
		PersistenceMs:    models.Millis(a.Phases.Persistence),
		CacheHit:         a.CacheHit,
		RetryCount:       a.RetryCount,
		IsHot:            a.Hot,
		WaitlistPosition: a.WaitlistPosition,
	}
}
