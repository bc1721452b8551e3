package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/validation"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

var (
	fixedNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	term2025 = models.Term{Year: 2025, Semester: 1}
)

type admissionFixture struct {
	catalog *memoryCatalog
	cache   *memoryCache
	audit   *recordedAudit
	metrics *MetricsService
	svc     *AdmissionService
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()
	catalog := newMemoryCatalog()
	cacheRepo := newMemoryCache()
	audit := &recordedAudit{}
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true)
	svc := NewAdmissionService(catalog, memoryEnrollments{catalog}, memoryStudents{catalog}, cache, metrics, audit, zap.NewNop(), AdmissionConfig{
		MaxCreditsPerTerm: 20,
		Clock:             func() time.Time { return fixedNow },
	})
	return &admissionFixture{catalog: catalog, cache: cacheRepo, audit: audit, metrics: metrics, svc: svc}
}

func slotOf(t *testing.T, day, start, end string) models.ClassSchedule {
	t.Helper()
	s, err := models.NewClassSchedule(day, start, end)
	require.NoError(t, err)
	return s
}

func newCourse(code string, credits, seats int, prerequisites ...string) *models.Course {
	if prerequisites == nil {
		prerequisites = []string{}
	}
	return &models.Course{
		Code:           code,
		Name:           "Course " + code,
		Credits:        credits,
		AvailableSeats: seats,
		Shift:          "morning",
		Term:           term2025,
		Schedule:       []models.ClassSchedule{},
		Prerequisites:  prerequisites,
	}
}

func requireRuleViolation(t *testing.T, err error, message string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRuleViolation.Code, appErr.Code)
	assert.Equal(t, message, appErr.Message)
}

func TestAdmissionEnrollSucceeds(t *testing.T) {
	f := newAdmissionFixture(t)
	course := f.catalog.addCourse(newCourse("IFSP101", 4, 10))
	f.catalog.addStudent(&models.Student{ID: "S1", Name: "Ana"})

	result, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"IFSP101"}, term2025)
	require.NoError(t, err)
	require.Len(t, result.Enrolled, 1)
	assert.Nil(t, result.Failed)
	assert.Equal(t, 4, result.TotalCredits)
	assert.Equal(t, 1, f.catalog.enrollmentCount())
	assert.Equal(t, 9, f.catalog.seats(course.ID))

	stored := f.catalog.enrollment(result.Enrolled[0].EnrollmentID)
	assert.Equal(t, models.EnrollmentStatusActive, stored.Status)
	assert.Equal(t, time.Date(2025, time.March, 13, 0, 0, 0, 0, time.UTC), stored.CancellationDeadline)
	assert.Equal(t, []string{models.AuditActionEnroll}, f.audit.actions())
	assert.Equal(t, 1, f.cache.invalidations())
}

func TestAdmissionMissingPrerequisite(t *testing.T) {
	f := newAdmissionFixture(t)
	course := f.catalog.addCourse(newCourse("IFSP201", 4, 10, "IFSP100"))
	f.catalog.addStudent(&models.Student{ID: "S1", CompletedCourses: []string{}})

	result, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"IFSP201"}, term2025)
	requireRuleViolation(t, err, "missing prerequisite: IFSP100")
	require.NotNil(t, result)
	assert.Empty(t, result.Enrolled)
	assert.Equal(t, "IFSP201", result.Failed.CourseCode)
	assert.Equal(t, 0, f.catalog.enrollmentCount())
	assert.Equal(t, 10, f.catalog.seats(course.ID))
	assert.Equal(t, []string{models.AuditActionEnrollRejected}, f.audit.actions())
}

func TestAdmissionCreditLimit(t *testing.T) {
	f := newAdmissionFixture(t)
	heavy := f.catalog.addCourse(newCourse("IFSP300", 18, 5))
	extra := f.catalog.addCourse(newCourse("IFSP301", 4, 5))
	f.catalog.addStudent(&models.Student{ID: "S1"})
	f.catalog.addEnrollment(models.NewEnrollment("S1", heavy.ID, term2025, fixedNow, 0))

	_, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"IFSP301"}, term2025)
	requireRuleViolation(t, err, "maximum of 20 credits exceeded")
	assert.Equal(t, 1, f.catalog.enrollmentCount())
	assert.Equal(t, 5, f.catalog.seats(extra.ID))
}

func TestAdmissionCanceledEnrollmentDoesNotCountCredits(t *testing.T) {
	f := newAdmissionFixture(t)
	heavy := f.catalog.addCourse(newCourse("IFSP300", 18, 5))
	f.catalog.addCourse(newCourse("IFSP301", 4, 5))
	f.catalog.addStudent(&models.Student{ID: "S1"})
	old := models.NewEnrollment("S1", heavy.ID, term2025, fixedNow, 0)
	require.NoError(t, old.Cancel(fixedNow))
	f.catalog.addEnrollment(old)

	_, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"IFSP301"}, term2025)
	require.NoError(t, err)
}

func TestAdmissionScheduleConflict(t *testing.T) {
	f := newAdmissionFixture(t)
	first := newCourse("IFSP101", 4, 5)
	first.Schedule = []models.ClassSchedule{slotOf(t, "Monday", "08:00", "10:00")}
	touching := newCourse("IFSP102", 4, 5)
	touching.Schedule = []models.ClassSchedule{slotOf(t, "monday", "10:00", "12:00")}
	clash := newCourse("IFSP103", 4, 5)
	clash.Schedule = []models.ClassSchedule{slotOf(t, "MONDAY", "09:00", "11:00")}
	f.catalog.addCourse(first)
	f.catalog.addCourse(touching)
	f.catalog.addCourse(clash)
	f.catalog.addStudent(&models.Student{ID: "S1"})

	_, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"IFSP101", "IFSP102"}, term2025)
	require.NoError(t, err)

	_, err = f.svc.EnrollStudent(context.Background(), "S1", []string{"IFSP103"}, term2025)
	requireRuleViolation(t, err, "schedule conflict between IFSP101 and IFSP103")
}

func TestAdmissionPartialBatch(t *testing.T) {
	f := newAdmissionFixture(t)
	f.catalog.addCourse(newCourse("A1", 3, 5))
	f.catalog.addCourse(newCourse("B1", 3, 0))
	f.catalog.addCourse(newCourse("C1", 3, 5))
	f.catalog.addStudent(&models.Student{ID: "S1"})

	result, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"A1", "B1", "C1"}, term2025)
	requireRuleViolation(t, err, "no seats available for course: B1")
	require.NotNil(t, result)
	require.Len(t, result.Enrolled, 1)
	assert.Equal(t, "A1", result.Enrolled[0].CourseCode)
	assert.Equal(t, "B1", result.Failed.CourseCode)
	assert.Equal(t, []string{"C1"}, result.Skipped)
	assert.Equal(t, 3, result.TotalCredits)
	assert.Equal(t, 1, f.catalog.enrollmentCount())
}

func TestAdmissionRejectsMalformedBatches(t *testing.T) {
	f := newAdmissionFixture(t)
	f.catalog.addCourse(newCourse("A1", 3, 5))
	student := &models.Student{ID: "S1"}
	f.catalog.addStudent(student)

	_, err := f.svc.Enroll(context.Background(), nil, []string{"A1"}, term2025)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Enroll(context.Background(), student, nil, term2025)
	requireRuleViolation(t, err, "no courses provided")

	_, err = f.svc.Enroll(context.Background(), student, []string{"A1", " A1 "}, term2025)
	requireRuleViolation(t, err, "duplicate course code: A1")

	_, err = f.svc.Enroll(context.Background(), student, []string{"A1", "  "}, term2025)
	assert.Equal(t, appErrors.ErrInvalidCourse.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Enroll(context.Background(), student, []string{"ZZ9"}, term2025)
	requireRuleViolation(t, err, "course not found: ZZ9")

	assert.Equal(t, 0, f.catalog.enrollmentCount())
}

func TestAdmissionUnknownStudent(t *testing.T) {
	f := newAdmissionFixture(t)

	_, err := f.svc.EnrollStudent(context.Background(), "", []string{"A1"}, term2025)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErrors.FromError(err).Code)

	_, err = f.svc.EnrollStudent(context.Background(), "ghost", []string{"A1"}, term2025)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAdmissionDefaultsToCurrentTerm(t *testing.T) {
	f := newAdmissionFixture(t)
	f.catalog.addCourse(newCourse("A1", 3, 5))
	f.catalog.addStudent(&models.Student{ID: "S1"})

	result, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"A1"}, models.Term{})
	require.NoError(t, err)
	assert.Equal(t, term2025, result.Term)
}

func TestAdmissionMapsStoreRaces(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{"seat taken concurrently", models.ErrSeatExhausted, appErrors.ErrRuleViolation.Code, "no seats available for course: A1"},
		{"duplicate active enrollment", models.ErrAlreadyEnrolled, appErrors.ErrRuleViolation.Code, "already enrolled in course: A1"},
		{"database failure", errors.New("connection reset"), appErrors.ErrInternal.Code, "failed to persist enrollment"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAdmissionFixture(t)
			course := f.catalog.addCourse(newCourse("A1", 3, 1))
			f.catalog.addStudent(&models.Student{ID: "S1"})
			f.catalog.admitErr = tc.err

			_, err := f.svc.EnrollStudent(context.Background(), "S1", []string{"A1"}, term2025)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.message, appErr.Message)
			assert.Equal(t, 1, f.catalog.seats(course.ID))
		})
	}
}

func TestAdmissionConcurrentLastSeat(t *testing.T) {
	f := newAdmissionFixture(t)
	course := f.catalog.addCourse(newCourse("HOT1", 2, 1))
	const contenders = 12
	for i := 0; i < contenders; i++ {
		f.catalog.addStudent(&models.Student{ID: fmt.Sprintf("S%d", i)})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.EnrollStudent(context.Background(), id, []string{"HOT1"}, term2025)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.True(t, appErrors.HasCode(err, appErrors.ErrRuleViolation.Code))
		}(fmt.Sprintf("S%d", i))
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 0, f.catalog.seats(course.ID))
	assert.Equal(t, 1, f.catalog.enrollmentCount())
}

func TestAdmissionHonoursCancelledContext(t *testing.T) {
	f := newAdmissionFixture(t)
	course := f.catalog.addCourse(newCourse("A1", 3, 5))
	f.catalog.addStudent(&models.Student{ID: "S1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.EnrollStudent(ctx, "S1", []string{"A1"}, term2025)
	require.Error(t, err)
	assert.Equal(t, 5, f.catalog.seats(course.ID))
	assert.Equal(t, 0, f.catalog.enrollmentCount())
}

func TestAdmissionCheckIsDryRun(t *testing.T) {
	f := newAdmissionFixture(t)
	a := f.catalog.addCourse(newCourse("A1", 12, 5))
	f.catalog.addCourse(newCourse("B1", 10, 5))
	f.catalog.addCourse(newCourse("C1", 4, 5, "X0"))
	f.catalog.addStudent(&models.Student{ID: "S1"})

	result, err := f.svc.Check(context.Background(), "S1", []string{"A1", "B1", "C1", "NOPE"}, term2025)
	require.NoError(t, err)
	require.Len(t, result.Verdicts, 4)
	assert.False(t, result.Eligible)

	assert.True(t, result.Verdicts[0].Eligible)
	assert.False(t, result.Verdicts[1].Eligible)
	assert.Equal(t, validation.RuleCreditLimit, result.Verdicts[1].Rule)
	assert.Equal(t, validation.RulePrerequisites, result.Verdicts[2].Rule)
	assert.Equal(t, "missing prerequisite: X0", result.Verdicts[2].Reason)
	assert.Equal(t, validation.RuleCourseExists, result.Verdicts[3].Rule)

	assert.Equal(t, 0, f.catalog.enrollmentCount())
	assert.Equal(t, 5, f.catalog.seats(a.ID))
	assert.Empty(t, f.audit.actions())
}
