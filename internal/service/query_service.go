package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type queryCourseStore interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByFilter(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByEnrollmentID(ctx context.Context, enrollmentID string) ([]models.Course, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error)
}

type queryEnrollmentStore interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
	ListByStudentAndTerm(ctx context.Context, studentID string, term models.Term) ([]models.Enrollment, error)
}

// QueryService serves read-side lookups over courses and enrollments.
type QueryService struct {
	courses     queryCourseStore
	enrollments queryEnrollmentStore
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewQueryService constructs the query service.
func NewQueryService(courses queryCourseStore, enrollments queryEnrollmentStore, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{courses: courses, enrollments: enrollments, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// CoursesByEnrollment returns the courses attached to an enrollment.
func (s *QueryService) CoursesByEnrollment(ctx context.Context, enrollmentID string) ([]models.Course, error) {
	if err := checkEnrollmentID(enrollmentID); err != nil {
		return nil, err
	}
	exists, err := s.enrollments.ExistsByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up enrollment")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}

	courses, err := s.courses.FindByEnrollmentID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	if len(courses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrEmptyResult, "no courses found for enrollment")
	}
	return courses, nil
}

// EnrollmentsByStudentAndTerm lists the student's enrollments in a term, active and canceled.
func (s *QueryService) EnrollmentsByStudentAndTerm(ctx context.Context, studentID string, term models.Term) ([]models.EnrollmentDetail, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "student id cannot be null")
	}
	if term.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "term cannot be null")
	}

	enrollments, err := s.enrollments.ListByStudentAndTerm(ctx, studentID, term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrEmptyResult, "no enrollments found")
	}
	details, err := hydrateEnrollments(ctx, s.courses, enrollments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled courses")
	}
	return details, nil
}

// CoursesByFilter matches courses by case-insensitive name and shift substrings.
// Blank filters match everything. The bool reports whether the catalog cache served the result.
func (s *QueryService) CoursesByFilter(ctx context.Context, name, shift string) ([]models.Course, bool, error) {
	filter := models.CourseFilter{Name: strings.TrimSpace(name), Shift: strings.TrimSpace(shift)}
	key := catalogFilterKey(filter.Name, filter.Shift)

	courses, hit, err := cachedLoad(ctx, s.cache, key, s.cacheTTL, func(ctx context.Context) ([]models.Course, error) {
		return s.courses.FindByFilter(ctx, filter)
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to filter courses")
	}
	s.logger.Debug("course filter served", zap.String("name", filter.Name), zap.String("shift", filter.Shift), zap.Bool("cache_hit", hit))
	if len(courses) == 0 {
		return nil, hit, appErrors.Clone(appErrors.ErrEmptyResult, "no courses match the filter")
	}
	return courses, hit, nil
}

// ListCourses returns the full catalog.
func (s *QueryService) ListCourses(ctx context.Context) ([]models.Course, bool, error) {
	courses, hit, err := cachedLoad(ctx, s.cache, catalogAllKey, s.cacheTTL, s.courses.List)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, hit, nil
}
