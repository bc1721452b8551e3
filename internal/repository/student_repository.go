package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student together with the codes of completed courses.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, name, created_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}

	const completedQuery = `SELECT course_code FROM student_completed_courses WHERE student_id = $1 ORDER BY course_code`
	completed := []string{}
	if err := r.db.SelectContext(ctx, &completed, completedQuery, id); err != nil {
		return nil, fmt.Errorf("load completed courses: %w", err)
	}
	student.CompletedCourses = completed
	return &student, nil
}

// ExistsByID checks whether a student record exists.
func (r *StudentRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM students WHERE id = $1 LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student: %w", err)
	}
	return true, nil
}

// CreateWithUser inserts a student and its login account in a single transaction.
func (r *StudentRepository) CreateWithUser(ctx context.Context, student *models.Student, user *models.User) (err error) {
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.StudentID = &student.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertStudent = `INSERT INTO students (id, name, created_at) VALUES (:id, :name, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertStudent, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}

	const insertUser = `INSERT INTO users (id, email, password_hash, full_name, role, student_id, active, created_at, updated_at)
VALUES (:id, :email, :password_hash, :full_name, :role, :student_id, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertUser, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}
