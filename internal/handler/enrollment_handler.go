package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type admissionService interface {
	EnrollStudent(ctx context.Context, studentID string, codes []string, term models.Term) (*dto.EnrollmentBatchResult, error)
	Check(ctx context.Context, studentID string, codes []string, term models.Term) (*dto.EnrollmentCheckResult, error)
}

type cancellationService interface {
	Cancel(ctx context.Context, enrollmentID, requesterID string) (bool, error)
}

type enrollmentQueryService interface {
	EnrollmentsByStudentAndTerm(ctx context.Context, studentID string, term models.Term) ([]models.EnrollmentDetail, error)
	CoursesByEnrollment(ctx context.Context, enrollmentID string) ([]models.Course, error)
}

type enrollmentExporter interface {
	ExportEnrollments(ctx context.Context, studentID string, term models.Term, format string) (*service.ExportResult, error)
}

// EnrollmentHandler exposes enrollment endpoints for the authenticated student.
type EnrollmentHandler struct {
	admission    admissionService
	cancellation cancellationService
	queries      enrollmentQueryService
	exporter     enrollmentExporter
	validate     *validator.Validate
	now          func() time.Time
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(admission admissionService, cancellation cancellationService, queries enrollmentQueryService, exporter enrollmentExporter) *EnrollmentHandler {
	return &EnrollmentHandler{
		admission:    admission,
		cancellation: cancellation,
		queries:      queries,
		exporter:     exporter,
		validate:     validator.New(),
		now:          time.Now,
	}
}

// WithClock sets the clock used for the default term and the cancellable flag.
func (h *EnrollmentHandler) WithClock(clock func() time.Time) *EnrollmentHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// Enroll godoc
// @Summary Enroll in courses
// @Description Admits the student into each course in order. Processing stops at the first rejection; earlier admissions are kept and returned alongside the error.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Courses to enroll in"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	studentID, ok := studentFromContext(c)
	if !ok {
		return
	}
	req, term, ok := h.bindEnrollRequest(c)
	if !ok {
		return
	}

	result, err := h.admission.EnrollStudent(c.Request.Context(), studentID, req.CourseCodes, term)
	if err != nil {
		if result != nil {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Check godoc
// @Summary Dry-run enrollment
// @Description Evaluates the admission rules for each course without enrolling.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Courses to check"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enrollments/check [post]
func (h *EnrollmentHandler) Check(c *gin.Context) {
	studentID, ok := studentFromContext(c)
	if !ok {
		return
	}
	req, term, ok := h.bindEnrollRequest(c)
	if !ok {
		return
	}

	result, err := h.admission.Check(c.Request.Context(), studentID, req.CourseCodes, term)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Mine godoc
// @Summary List my enrollments
// @Description Lists the student's enrollments for a term, canceled ones included. Defaults to the current term.
// @Tags Enrollments
// @Produce json
// @Param year query int false "Term year"
// @Param semester query int false "Term semester (1 or 2)"
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) Mine(c *gin.Context) {
	studentID, ok := studentFromContext(c)
	if !ok {
		return
	}
	term, err := h.termFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	details, err := h.queries.EnrollmentsByStudentAndTerm(c.Request.Context(), studentID, term)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrEmptyResult.Code) {
			response.JSON(c, http.StatusOK, []dto.EnrollmentView{}, map[string]interface{}{"term": term.String()})
			return
		}
		response.Error(c, err)
		return
	}

	now := h.now()
	views := make([]dto.EnrollmentView, 0, len(details))
	for _, d := range details {
		views = append(views, dto.EnrollmentView{
			EnrollmentDetail: d,
			Cancellable:      !d.IsCanceled() && !d.DeadlinePassed(now),
		})
	}
	response.JSON(c, http.StatusOK, views, map[string]interface{}{"term": term.String()})
}

// Export godoc
// @Summary Export my enrollments
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param year query int false "Term year"
// @Param semester query int false "Term semester (1 or 2)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /enrollments/me/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	studentID, ok := studentFromContext(c)
	if !ok {
		return
	}
	term, err := h.termFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.exporter.ExportEnrollments(c.Request.Context(), studentID, term, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.AuditResourceIDKey, studentID)
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}

// Courses godoc
// @Summary Courses of an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/courses [get]
func (h *EnrollmentHandler) Courses(c *gin.Context) {
	courses, err := h.queries.CoursesByEnrollment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses)
}

// Cancel godoc
// @Summary Cancel an enrollment
// @Description Cancels one of the student's enrollments before its deadline and releases the seat.
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments/{id}/cancel [delete]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	studentID, ok := studentFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	canceled, err := h.cancellation.Cancel(c.Request.Context(), id, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canceled {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found"))
		return
	}
	response.JSON(c, http.StatusOK, dto.CancelResult{EnrollmentID: id, Canceled: true})
}

func (h *EnrollmentHandler) bindEnrollRequest(c *gin.Context) (dto.EnrollRequest, models.Term, bool) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return req, models.Term{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload"))
		return req, models.Term{}, false
	}
	term, err := termFrom(req.Year, req.Semester)
	if err != nil {
		response.Error(c, err)
		return req, models.Term{}, false
	}
	return req, term, true
}

// termFromQuery reads year and semester, defaulting to the current term when both are absent.
func (h *EnrollmentHandler) termFromQuery(c *gin.Context) (models.Term, error) {
	rawYear, rawSemester := c.Query("year"), c.Query("semester")
	if rawYear == "" && rawSemester == "" {
		return models.CurrentTerm(h.now()), nil
	}
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return models.Term{}, appErrors.Clone(appErrors.ErrInvalidArgument, "invalid year")
	}
	semester, err := strconv.Atoi(rawSemester)
	if err != nil {
		return models.Term{}, appErrors.Clone(appErrors.ErrInvalidArgument, "invalid semester")
	}
	return termFrom(year, semester)
}

// termFrom builds a term; zero year and semester mean "let the service decide".
func termFrom(year, semester int) (models.Term, error) {
	if year == 0 && semester == 0 {
		return models.Term{}, nil
	}
	term, err := models.NewTerm(year, semester)
	if err != nil {
		return models.Term{}, appErrors.Clone(appErrors.ErrInvalidArgument, err.Error())
	}
	return term, nil
}
