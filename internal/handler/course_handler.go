package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type catalogQueryService interface {
	ListCourses(ctx context.Context) ([]models.Course, bool, error)
	CoursesByFilter(ctx context.Context, name, shift string) ([]models.Course, bool, error)
}

// CourseHandler serves the course catalog.
type CourseHandler struct {
	queries catalogQueryService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(queries catalogQueryService) *CourseHandler {
	return &CourseHandler{queries: queries}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, hit, err := h.queries.ListCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, courses, middleware.ExtractMeta(c))
}

// Filter godoc
// @Summary Filter courses
// @Description Case-insensitive substring match on course name and shift
// @Tags Courses
// @Produce json
// @Param name query string false "Name fragment"
// @Param shift query string false "Shift fragment"
// @Success 200 {object} response.Envelope
// @Router /courses/filter [get]
func (h *CourseHandler) Filter(c *gin.Context) {
	var query dto.CourseFilterQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid filter"))
		return
	}

	courses, hit, err := h.queries.CoursesByFilter(c.Request.Context(), query.Name, query.Shift)
	middleware.SetCacheHit(c, hit)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrEmptyResult.Code) {
			response.JSON(c, http.StatusOK, []models.Course{}, middleware.ExtractMeta(c))
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, middleware.ExtractMeta(c))
}
