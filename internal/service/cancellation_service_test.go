package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type cancellationFixture struct {
	catalog *memoryCatalog
	cache   *memoryCache
	audit   *recordedAudit
	course  *models.Course
	clock   time.Time
	svc     *CancellationService
}

func newCancellationFixture(t *testing.T) *cancellationFixture {
	t.Helper()
	f := &cancellationFixture{catalog: newMemoryCatalog(), cache: newMemoryCache(), audit: &recordedAudit{}, clock: fixedNow}
	f.course = f.catalog.addCourse(newCourse("IFSP101", 4, 9))
	cache := NewCacheService(f.cache, nil, time.Minute, zap.NewNop(), true)
	f.svc = NewCancellationService(memoryEnrollments{f.catalog}, cache, NewMetricsService(), f.audit, zap.NewNop(), func() time.Time { return f.clock })
	return f
}

func (f *cancellationFixture) enroll(studentID string) *models.Enrollment {
	return f.catalog.addEnrollment(models.NewEnrollment(studentID, f.course.ID, term2025, fixedNow, 0))
}

func TestCancellationReleasesSeat(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.enroll("S1")

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "S1")
	require.NoError(t, err)
	assert.True(t, ok)

	stored := f.catalog.enrollment(enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusCanceled, stored.Status)
	require.NotNil(t, stored.CanceledAt)
	assert.Equal(t, 10, f.catalog.seats(f.course.ID))
	assert.Equal(t, []string{models.AuditActionCancelEnrollment}, f.audit.actions())
	assert.Equal(t, 1, f.cache.invalidations())
}

func TestCancellationOnDeadlineDayIsAllowed(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.enroll("S1")
	f.clock = time.Date(2025, time.March, 13, 23, 59, 0, 0, time.UTC)

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "S1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancellationAfterDeadline(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.enroll("S1")
	f.clock = time.Date(2025, time.March, 14, 0, 1, 0, 0, time.UTC)

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "S1")
	assert.False(t, ok)
	requireRuleViolation(t, err, "cancellation deadline has expired")
	assert.Equal(t, models.EnrollmentStatusActive, f.catalog.enrollment(enrollment.ID).Status)
	assert.Equal(t, 9, f.catalog.seats(f.course.ID))
}

func TestCancellationByAnotherStudent(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.enroll("A")

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "B")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.EnrollmentStatusActive, f.catalog.enrollment(enrollment.ID).Status)
	assert.Equal(t, 9, f.catalog.seats(f.course.ID))
	assert.Empty(t, f.audit.actions())
}

func TestCancellationRepeatsFailTheSameWay(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.enroll("S1")

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "S1")
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		ok, err = f.svc.Cancel(context.Background(), enrollment.ID, "S1")
		assert.False(t, ok)
		requireRuleViolation(t, err, "enrollment is already cancelled")
	}
	assert.Equal(t, 10, f.catalog.seats(f.course.ID))
}

func TestCancellationLosingRaceIsAlreadyCancelled(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.enroll("S1")
	f.catalog.cancelErr = models.ErrEnrollmentCanceled

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "S1")
	assert.False(t, ok)
	requireRuleViolation(t, err, "enrollment is already cancelled")
}

func TestCancellationUnknownOrBlankID(t *testing.T) {
	f := newCancellationFixture(t)

	ok, err := f.svc.Cancel(context.Background(), uuid.NewString(), "S1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Cancel(context.Background(), " ", "S1")
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErrors.FromError(err).Code)
}

func TestCancellationMalformedIDNeverReachesStore(t *testing.T) {
	f := newCancellationFixture(t)
	f.catalog.cancelErr = errors.New("invalid input syntax for type uuid")

	ok, err := f.svc.Cancel(context.Background(), "abc", "S1")
	assert.False(t, ok)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, "invalid enrollment id", appErr.Message)
	assert.Empty(t, f.audit.actions())
}

func TestCancellationStoreFailure(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.enroll("S1")
	f.catalog.cancelErr = errors.New("deadlock detected")

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "S1")
	assert.False(t, ok)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestCancellationDeletedCourseStillCancels(t *testing.T) {
	f := newCancellationFixture(t)
	enrollment := f.catalog.addEnrollment(models.NewEnrollment("S1", "", term2025, fixedNow, 0))

	ok, err := f.svc.Cancel(context.Background(), enrollment.ID, "S1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, f.catalog.seats(f.course.ID))
}
