package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

const (
	msgAlreadyCancelled = "enrollment is already cancelled"
	msgDeadlineExpired  = "cancellation deadline has expired"
)

type cancellationStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Cancel(ctx context.Context, id string, canceledAt time.Time) error
}

// CancellationService cancels enrollments on behalf of their owner.
type CancellationService struct {
	enrollments cancellationStore
	cache       *CacheService
	metrics     *MetricsService
	audit       auditRecorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewCancellationService constructs the service. A nil clock defaults to time.Now.
func NewCancellationService(enrollments cancellationStore, cache *CacheService, metrics *MetricsService, audit auditRecorder, logger *zap.Logger, clock func() time.Time) *CancellationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &CancellationService{enrollments: enrollments, cache: cache, metrics: metrics, audit: audit, logger: logger, now: clock}
}

// Cancel cancels the enrollment if it belongs to requesterID and the deadline
// has not passed. It returns false, without error, when the enrollment does not exist.
func (s *CancellationService) Cancel(ctx context.Context, enrollmentID, requesterID string) (bool, error) {
	if err := checkEnrollmentID(enrollmentID); err != nil {
		return false, err
	}

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordCancellation(OutcomeNotFound)
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if enrollment.StudentID != requesterID {
		s.metrics.RecordCancellation(OutcomeDenied)
		s.logger.Warn("cancellation denied",
			zap.String("enrollment_id", enrollmentID),
			zap.String("requester_id", requesterID),
		)
		return false, appErrors.Clone(appErrors.ErrPermissionDenied, "enrollment belongs to another student")
	}

	now := s.now()
	if enrollment.IsCanceled() {
		s.metrics.RecordCancellation(OutcomeRejected)
		return false, appErrors.Clone(appErrors.ErrRuleViolation, msgAlreadyCancelled)
	}
	if enrollment.DeadlinePassed(now) {
		s.metrics.RecordCancellation(OutcomeRejected)
		return false, appErrors.Clone(appErrors.ErrRuleViolation, msgDeadlineExpired)
	}

	if err := ctx.Err(); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "cancellation aborted")
	}

	if err := s.enrollments.Cancel(ctx, enrollmentID, now.UTC()); err != nil {
		if errors.Is(err, models.ErrEnrollmentCanceled) {
			s.metrics.RecordCancellation(OutcomeRejected)
			return false, appErrors.Clone(appErrors.ErrRuleViolation, msgAlreadyCancelled)
		}
		s.metrics.RecordCancellation(OutcomeFailed)
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}

	s.metrics.RecordCancellation(OutcomeCanceled)
	if err := s.cache.Invalidate(ctx, catalogCachePattern); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
	if s.audit != nil {
		s.audit.Record(enrollmentAudit(models.AuditActionCancelEnrollment, enrollmentID, map[string]interface{}{
			"student_id": requesterID,
			"course_id":  enrollment.CourseID,
		}))
	}
	s.logger.Info("enrollment cancelled", zap.String("enrollment_id", enrollmentID), zap.String("student_id", requesterID))
	return true, nil
}

// checkEnrollmentID rejects ids the enrollments table could never hold.
func checkEnrollmentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrInvalidArgument, "ID cannot be null")
	}
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidArgument, "invalid enrollment id")
	}
	return nil
}
