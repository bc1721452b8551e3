package dto

import "github.com/noah-isme/course-enrollment-api/internal/models"

// Per-course outcome statuses reported in batch results.
const (
	OutcomeEnrolled = "ENROLLED"
	OutcomeFailed   = "FAILED"
)

// EnrollRequest is the payload for enrolling the authenticated student.
// Year and semester default to the current term when omitted.
type EnrollRequest struct {
	CourseCodes []string `json:"course_codes"`
	Year        int      `json:"year" validate:"omitempty,gt=0"`
	Semester    int      `json:"semester" validate:"omitempty,oneof=1 2"`
}

// CourseOutcome reports what happened to one course of a batch.
type CourseOutcome struct {
	CourseCode   string `json:"course_code"`
	Status       string `json:"status"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// EnrollmentBatchResult lists the courses admitted before processing stopped.
// Failed is set when a course was rejected; courses after it were not attempted.
type EnrollmentBatchResult struct {
	StudentID    string          `json:"student_id"`
	Term         models.Term     `json:"term"`
	Enrolled     []CourseOutcome `json:"enrolled"`
	Failed       *CourseOutcome  `json:"failed,omitempty"`
	Skipped      []string        `json:"skipped,omitempty"`
	TotalCredits int             `json:"total_credits"`
}

// CourseVerdict is the dry-run decision for one course.
type CourseVerdict struct {
	CourseCode string `json:"course_code"`
	Eligible   bool   `json:"eligible"`
	Rule       string `json:"rule,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// EnrollmentCheckResult is returned by the dry-run endpoint.
type EnrollmentCheckResult struct {
	StudentID string          `json:"student_id"`
	Term      models.Term     `json:"term"`
	Verdicts  []CourseVerdict `json:"verdicts"`
	Eligible  bool            `json:"eligible"`
}

// EnrollmentView is a student's enrollment as listed over HTTP.
type EnrollmentView struct {
	models.EnrollmentDetail
	Cancellable bool `json:"cancellable"`
}

// CancelResult is the response of a cancellation request.
type CancelResult struct {
	EnrollmentID string `json:"enrollment_id"`
	Canceled     bool   `json:"canceled"`
}
