package models

import (
	"errors"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. CANCELED is terminal.
const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCanceled EnrollmentStatus = "CANCELED"
)

// DefaultCancellationWindow is how long after creation an enrollment may still be canceled.
const DefaultCancellationWindow = 3 * 24 * time.Hour

var (
	// ErrEnrollmentCanceled is returned when a canceled enrollment is asked to change state.
	ErrEnrollmentCanceled = errors.New("enrollment is already cancelled")
	// ErrAlreadyEnrolled is returned when the student already holds an active enrollment for the course and term.
	ErrAlreadyEnrolled = errors.New("already enrolled in course")
)

// Enrollment binds one student to one course for one term. Records are never deleted;
// cancellation flips the status.
type Enrollment struct {
	ID                   string           `json:"id"`
	StudentID            string           `json:"student_id"`
	CourseID             string           `json:"course_id"`
	Term                 Term             `json:"term"`
	CancellationDeadline time.Time        `json:"cancellation_deadline"`
	Status               EnrollmentStatus `json:"status"`
	CreatedAt            time.Time        `json:"created_at"`
	CanceledAt           *time.Time       `json:"canceled_at,omitempty"`
}

// NewEnrollment creates an active enrollment whose cancellation deadline is the
// creation date plus the given window. The date is taken in now's location.
func NewEnrollment(studentID, courseID string, term Term, now time.Time, window time.Duration) *Enrollment {
	if window <= 0 {
		window = DefaultCancellationWindow
	}
	return &Enrollment{
		StudentID:            studentID,
		CourseID:             courseID,
		Term:                 term,
		CancellationDeadline: truncateToDate(now.Add(window)),
		Status:               EnrollmentStatusActive,
		CreatedAt:            now.UTC(),
	}
}

// IsCanceled reports whether the enrollment reached its terminal state.
func (e *Enrollment) IsCanceled() bool {
	return e.Status == EnrollmentStatusCanceled
}

// DeadlinePassed reports whether today, in now's location, is after the cancellation deadline date.
func (e *Enrollment) DeadlinePassed(now time.Time) bool {
	return truncateToDate(now).After(truncateToDate(e.CancellationDeadline))
}

// Cancel moves the enrollment to its terminal state.
func (e *Enrollment) Cancel(now time.Time) error {
	if e.IsCanceled() {
		return ErrEnrollmentCanceled
	}
	at := now.UTC()
	e.Status = EnrollmentStatusCanceled
	e.CanceledAt = &at
	return nil
}

// EnrollmentDetail is an enrollment hydrated with its course snapshot.
type EnrollmentDetail struct {
	Enrollment
	Course *Course `json:"course,omitempty"`
}

// truncateToDate keeps the calendar date t has in its own location, as midnight UTC.
func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
