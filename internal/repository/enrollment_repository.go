package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

const (
	enrollmentColumns = `id, student_id, course_id, term_year, term_semester, cancellation_deadline, status, created_at, canceled_at`

	uniqueViolation = "23505"
)

type enrollmentRow struct {
	ID                   string                  `db:"id"`
	StudentID            string                  `db:"student_id"`
	CourseID             sql.NullString          `db:"course_id"`
	TermYear             int                     `db:"term_year"`
	TermSemester         int                     `db:"term_semester"`
	CancellationDeadline time.Time               `db:"cancellation_deadline"`
	Status               models.EnrollmentStatus `db:"status"`
	CreatedAt            time.Time               `db:"created_at"`
	CanceledAt           *time.Time              `db:"canceled_at"`
}

func (r enrollmentRow) toModel() models.Enrollment {
	return models.Enrollment{
		ID:                   r.ID,
		StudentID:            r.StudentID,
		CourseID:             r.CourseID.String,
		Term:                 models.Term{Year: r.TermYear, Semester: r.TermSemester},
		CancellationDeadline: r.CancellationDeadline,
		Status:               r.Status,
		CreatedAt:            r.CreatedAt,
		CanceledAt:           r.CanceledAt,
	}
}

// EnrollmentRepository handles persistence of enrollments and the seat counter they consume.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var row enrollmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	enrollment := row.toModel()
	return &enrollment, nil
}

// ExistsByID checks whether an enrollment exists.
func (r *EnrollmentRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM enrollments WHERE id = $1 LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ListByStudentAndTerm returns every enrollment, canceled ones included, a student holds for a term.
func (r *EnrollmentRepository) ListByStudentAndTerm(ctx context.Context, studentID string, term models.Term) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND term_year = $2 AND term_semester = $3 ORDER BY created_at ASC`, enrollmentColumns)
	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, term.Year, term.Semester); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	enrollments := make([]models.Enrollment, len(rows))
	for i, row := range rows {
		enrollments[i] = row.toModel()
	}
	return enrollments, nil
}

// SumCreditsByStudentAndTerm totals the credits of the student's active enrollments for a term.
func (r *EnrollmentRepository) SumCreditsByStudentAndTerm(ctx context.Context, studentID string, term models.Term) (int, error) {
	const query = `SELECT COALESCE(SUM(c.credits), 0) FROM enrollments e
JOIN courses c ON c.id = e.course_id
WHERE e.student_id = $1 AND e.term_year = $2 AND e.term_semester = $3 AND e.status = $4`
	var total int
	if err := r.db.GetContext(ctx, &total, query, studentID, term.Year, term.Semester, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("sum student credits: %w", err)
	}
	return total, nil
}

// Admit takes one seat from the course and records the enrollment atomically.
// The seat decrement only applies while seats remain, so concurrent admissions
// can never push the counter below zero; the loser receives models.ErrSeatExhausted.
func (r *EnrollmentRepository) Admit(ctx context.Context, enrollment *models.Enrollment) (err error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admission transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const decrementSeat = `UPDATE courses SET available_seats = available_seats - 1, updated_at = $2 WHERE id = $1 AND available_seats > 0`
	res, err := tx.ExecContext(ctx, decrementSeat, enrollment.CourseID, enrollment.CreatedAt)
	if err != nil {
		return fmt.Errorf("decrement course seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement course seat: %w", err)
	}
	if affected == 0 {
		err = models.ErrSeatExhausted
		return err
	}

	query := fmt.Sprintf(`INSERT INTO enrollments (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, enrollmentColumns)
	if _, err = tx.ExecContext(ctx, query, enrollment.ID, enrollment.StudentID, enrollment.CourseID, enrollment.Term.Year,
		enrollment.Term.Semester, enrollment.CancellationDeadline, enrollment.Status, enrollment.CreatedAt, enrollment.CanceledAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = models.ErrAlreadyEnrolled
			return err
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}
	return nil
}

// Cancel flips an active enrollment to canceled and returns its seat to the course.
// An enrollment that is no longer active yields models.ErrEnrollmentCanceled.
func (r *EnrollmentRepository) Cancel(ctx context.Context, id string, canceledAt time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancellation transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const flipStatus = `UPDATE enrollments SET status = $2, canceled_at = $3 WHERE id = $1 AND status = $4 RETURNING course_id`
	var courseID sql.NullString
	if err = tx.GetContext(ctx, &courseID, flipStatus, id, models.EnrollmentStatusCanceled, canceledAt, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			err = models.ErrEnrollmentCanceled
			return err
		}
		return fmt.Errorf("cancel enrollment: %w", err)
	}

	if courseID.Valid {
		const incrementSeat = `UPDATE courses SET available_seats = available_seats + 1, updated_at = $2 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, incrementSeat, courseID.String, canceledAt); err != nil {
			return fmt.Errorf("release course seat: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cancellation: %w", err)
	}
	return nil
}
