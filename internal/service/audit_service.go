package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/jobs"
)

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditRecorder is the write side used by the enrollment services.
type auditRecorder interface {
	Record(entry models.AuditLog)
}

// AuditService writes audit entries asynchronously through a worker queue so
// request paths never wait on the audit table.
type AuditService struct {
	store   auditStore
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs the service; call Start before recording.
func NewAuditService(store auditStore, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	s := &AuditService{store: store, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, cfg)
	return s
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes buffered entries and stops the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record queues an entry without blocking. Entries are dropped, and counted, when the queue is full or stopped.
func (s *AuditService) Record(entry models.AuditLog) {
	if s == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: entry.Action, Payload: entry}); err != nil {
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit entry dropped", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	if err := s.store.CreateAuditLog(ctx, &entry); err != nil {
		return fmt.Errorf("write audit log %s: %w", entry.ID, err)
	}
	return nil
}

// enrollmentAudit builds an audit entry for enrollment resources.
func enrollmentAudit(action, resourceID string, values map[string]interface{}) models.AuditLog {
	entry := models.AuditLog{Action: action, Resource: "enrollment"}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if len(values) > 0 {
		if body, err := json.Marshal(values); err == nil {
			entry.NewValues = body
		}
	}
	return entry
}
