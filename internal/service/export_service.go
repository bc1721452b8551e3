package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/export"
)

type exportEnrollmentStore interface {
	ListByStudentAndTerm(ctx context.Context, studentID string, term models.Term) ([]models.Enrollment, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered document ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

var enrollmentExportHeaders = []string{
	"enrollment_id", "course_code", "course_name", "credits", "shift", "schedule", "status", "cancellation_deadline",
}

// ExportService renders a student's term enrollments as CSV or PDF.
type ExportService struct {
	enrollments exportEnrollmentStore
	courses     courseLookup
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to pkg/export.
func NewExportService(enrollments exportEnrollmentStore, courses courseLookup, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{enrollments: enrollments, courses: courses, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// ExportEnrollments renders every enrollment the student holds in term, canceled ones included.
func (s *ExportService) ExportEnrollments(ctx context.Context, studentID string, term models.Term, rawFormat string) (*ExportResult, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "student id cannot be null")
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, err.Error())
	}
	if term.IsZero() {
		term = models.CurrentTerm(s.now())
	}

	enrollments, err := s.enrollments.ListByStudentAndTerm(ctx, studentID, term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	details, err := hydrateEnrollments(ctx, s.courses, enrollments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled courses")
	}

	dataset := buildEnrollmentDataset(details)
	var payload []byte
	switch format {
	case export.FormatPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Enrollments %s - %s", studentID, term))
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("enrollments exported",
		zap.String("student_id", studentID),
		zap.String("term", term.String()),
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		Filename:    fmt.Sprintf("enrollments_%s_%d_%d.%s", sanitizeFilename(studentID), term.Year, term.Semester, format.Extension()),
		ContentType: format.ContentType(),
		Payload:     payload,
		Rows:        len(dataset.Rows),
	}, nil
}

func buildEnrollmentDataset(details []models.EnrollmentDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(details))
	for _, d := range details {
		row := map[string]string{
			"enrollment_id":         d.ID,
			"status":                string(d.Status),
			"cancellation_deadline": d.CancellationDeadline.Format("2006-01-02"),
		}
		if d.Course != nil {
			slots := make([]string, 0, len(d.Course.Schedule))
			for _, slot := range d.Course.Schedule {
				slots = append(slots, slot.String())
			}
			row["course_code"] = d.Course.Code
			row["course_name"] = d.Course.Name
			row["credits"] = strconv.Itoa(d.Course.Credits)
			row["shift"] = d.Course.Shift
			row["schedule"] = strings.Join(slots, "; ")
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: enrollmentExportHeaders, Rows: rows}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
