package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/validation"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type admissionCourseStore interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error)
}

type admissionEnrollmentStore interface {
	ListByStudentAndTerm(ctx context.Context, studentID string, term models.Term) ([]models.Enrollment, error)
	SumCreditsByStudentAndTerm(ctx context.Context, studentID string, term models.Term) (int, error)
	Admit(ctx context.Context, enrollment *models.Enrollment) error
}

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// AdmissionConfig tunes the admission rules.
type AdmissionConfig struct {
	MaxCreditsPerTerm  int
	CancellationWindow time.Duration
	Clock              func() time.Time
}

// AdmissionService enrolls students into courses after running the validation rules.
type AdmissionService struct {
	courses     admissionCourseStore
	enrollments admissionEnrollmentStore
	students    studentStore
	rules       []validation.Rule
	cache       *CacheService
	metrics     *MetricsService
	audit       auditRecorder
	logger      *zap.Logger
	window      time.Duration
	now         func() time.Time
}

// NewAdmissionService constructs the admission service.
func NewAdmissionService(courses admissionCourseStore, enrollments admissionEnrollmentStore, students studentStore, cache *CacheService, metrics *MetricsService, audit auditRecorder, logger *zap.Logger, cfg AdmissionConfig) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.CancellationWindow <= 0 {
		cfg.CancellationWindow = models.DefaultCancellationWindow
	}
	return &AdmissionService{
		courses:     courses,
		enrollments: enrollments,
		students:    students,
		rules:       validation.DefaultRules(cfg.MaxCreditsPerTerm),
		cache:       cache,
		metrics:     metrics,
		audit:       audit,
		logger:      logger,
		window:      cfg.CancellationWindow,
		now:         cfg.Clock,
	}
}

// EnrollStudent resolves the student and enrolls them in the given courses.
func (s *AdmissionService) EnrollStudent(ctx context.Context, studentID string, codes []string, term models.Term) (*dto.EnrollmentBatchResult, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.Enroll(ctx, student, codes, term)
}

// Enroll admits the student into each course in order. Processing stops at the
// first rejected course; courses admitted before it stay enrolled and are
// reported in the result alongside the error.
func (s *AdmissionService) Enroll(ctx context.Context, student *models.Student, codes []string, term models.Term) (*dto.EnrollmentBatchResult, error) {
	if student == nil || strings.TrimSpace(student.ID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "student cannot be null")
	}
	codes, err := normalizeCodes(codes)
	if err != nil {
		return nil, err
	}
	if term.IsZero() {
		term = models.CurrentTerm(s.now())
	}

	result := &dto.EnrollmentBatchResult{StudentID: student.ID, Term: term, Enrolled: []dto.CourseOutcome{}}
	for i, code := range codes {
		enrollment, err := s.admit(ctx, student, code, term)
		if err != nil {
			result.Failed = &dto.CourseOutcome{CourseCode: code, Status: dto.OutcomeFailed, Reason: appErrors.FromError(err).Message}
			result.Skipped = codes[i+1:]
			s.recordRejection(student.ID, code, term, err)
			s.fillCredits(ctx, result)
			return result, err
		}
		result.Enrolled = append(result.Enrolled, dto.CourseOutcome{CourseCode: code, Status: dto.OutcomeEnrolled, EnrollmentID: enrollment.ID})
	}

	s.fillCredits(ctx, result)
	s.logger.Info("enrollment batch completed",
		zap.String("student_id", student.ID),
		zap.String("term", term.String()),
		zap.Int("courses", len(result.Enrolled)),
	)
	return result, nil
}

// Check runs the rules for every course without persisting anything. Courses
// that pass are counted against credits and schedule for the ones after them.
func (s *AdmissionService) Check(ctx context.Context, studentID string, codes []string, term models.Term) (*dto.EnrollmentCheckResult, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	codes, err = normalizeCodes(codes)
	if err != nil {
		return nil, err
	}
	if term.IsZero() {
		term = models.CurrentTerm(s.now())
	}

	current, err := s.currentEnrollments(ctx, student.ID, term)
	if err != nil {
		return nil, err
	}

	result := &dto.EnrollmentCheckResult{StudentID: student.ID, Term: term, Eligible: true, Verdicts: make([]dto.CourseVerdict, 0, len(codes))}
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enrollment check aborted")
		}
		verdict := dto.CourseVerdict{CourseCode: code, Eligible: true}
		course, err := s.findCourse(ctx, code)
		if err != nil {
			if !appErrors.HasCode(err, appErrors.ErrRuleViolation.Code) {
				return nil, err
			}
			verdict.Eligible = false
			verdict.Rule = validation.RuleCourseExists
			verdict.Reason = appErrors.FromError(err).Message
		} else {
			candidate := validation.Candidate{Student: student, Course: course, Term: term, Current: current}
			if rule, err := validation.FirstFailure(candidate, s.rules); err != nil {
				verdict.Eligible = false
				verdict.Rule = rule
				verdict.Reason = appErrors.FromError(err).Message
			} else {
				current = append(current, models.EnrollmentDetail{
					Enrollment: models.Enrollment{StudentID: student.ID, CourseID: course.ID, Term: term, Status: models.EnrollmentStatusActive},
					Course:     course,
				})
			}
		}
		if !verdict.Eligible {
			result.Eligible = false
		}
		result.Verdicts = append(result.Verdicts, verdict)
	}
	return result, nil
}

func (s *AdmissionService) admit(ctx context.Context, student *models.Student, code string, term models.Term) (*models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enrollment aborted")
	}

	course, err := s.findCourse(ctx, code)
	if err != nil {
		return nil, err
	}

	current, err := s.currentEnrollments(ctx, student.ID, term)
	if err != nil {
		return nil, err
	}

	candidate := validation.Candidate{Student: student, Course: course, Term: term, Current: current}
	if err := validation.Evaluate(candidate, s.rules); err != nil {
		return nil, err
	}

	if err := course.DecreaseSeat(); err != nil {
		return nil, seatsExhausted(code)
	}

	if err := ctx.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enrollment aborted")
	}

	enrollment := models.NewEnrollment(student.ID, course.ID, term, s.now(), s.window)
	start := time.Now()
	err = s.enrollments.Admit(ctx, enrollment)
	s.metrics.ObserveDBQuery("enrollment_admit", time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSeatExhausted):
			return nil, seatsExhausted(code)
		case errors.Is(err, models.ErrAlreadyEnrolled):
			return nil, appErrors.Clone(appErrors.ErrRuleViolation, "already enrolled in course: "+code)
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist enrollment")
		}
	}

	s.metrics.RecordAdmission(OutcomeEnrolled)
	if err := s.cache.Invalidate(ctx, catalogCachePattern); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
	if s.audit != nil {
		s.audit.Record(enrollmentAudit(models.AuditActionEnroll, enrollment.ID, map[string]interface{}{
			"student_id":  student.ID,
			"course_code": code,
			"term":        term.String(),
		}))
	}
	return enrollment, nil
}

func (s *AdmissionService) loadStudent(ctx context.Context, studentID string) (*models.Student, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "student id cannot be null")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *AdmissionService) findCourse(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.courses.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRuleViolation, "course not found: "+code)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// currentEnrollments returns the student's term enrollments hydrated with their courses.
func (s *AdmissionService) currentEnrollments(ctx context.Context, studentID string, term models.Term) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListByStudentAndTerm(ctx, studentID, term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current enrollments")
	}
	details, err := hydrateEnrollments(ctx, s.courses, enrollments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled courses")
	}
	return details, nil
}

func (s *AdmissionService) fillCredits(ctx context.Context, result *dto.EnrollmentBatchResult) {
	total, err := s.enrollments.SumCreditsByStudentAndTerm(ctx, result.StudentID, result.Term)
	if err != nil {
		s.logger.Warn("failed to sum enrolled credits", zap.String("student_id", result.StudentID), zap.Error(err))
		return
	}
	result.TotalCredits = total
}

func (s *AdmissionService) recordRejection(studentID, code string, term models.Term, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Code == appErrors.ErrInternal.Code {
		s.metrics.RecordAdmission(OutcomeFailed)
		s.logger.Error("enrollment failed", zap.String("student_id", studentID), zap.String("course_code", code), zap.Error(err))
	} else {
		s.metrics.RecordAdmission(OutcomeRejected)
		s.logger.Info("enrollment rejected", zap.String("student_id", studentID), zap.String("course_code", code), zap.String("reason", appErr.Message))
	}
	if s.audit != nil {
		s.audit.Record(enrollmentAudit(models.AuditActionEnrollRejected, "", map[string]interface{}{
			"student_id":  studentID,
			"course_code": code,
			"term":        term.String(),
			"reason":      appErr.Message,
		}))
	}
}

// normalizeCodes trims codes, rejecting an empty batch, blank codes and repeats.
func normalizeCodes(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrRuleViolation, "no courses provided")
	}
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidCourse, "course code is missing")
		}
		if _, dup := seen[code]; dup {
			return nil, appErrors.Clone(appErrors.ErrRuleViolation, "duplicate course code: "+code)
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

func seatsExhausted(code string) error {
	return appErrors.Clone(appErrors.ErrRuleViolation, "no seats available for course: "+code)
}

type courseLookup interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error)
}

// hydrateEnrollments attaches course snapshots to enrollments; a course that no longer exists leaves Course nil.
func hydrateEnrollments(ctx context.Context, courses courseLookup, enrollments []models.Enrollment) ([]models.EnrollmentDetail, error) {
	details := make([]models.EnrollmentDetail, 0, len(enrollments))
	if len(enrollments) == 0 {
		return details, nil
	}
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		if e.CourseID != "" {
			ids = append(ids, e.CourseID)
		}
	}
	byID, err := courses.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range enrollments {
		details = append(details, models.EnrollmentDetail{Enrollment: e, Course: byID[e.CourseID]})
	}
	return details, nil
}
