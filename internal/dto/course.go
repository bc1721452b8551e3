package dto

// CourseFilterQuery binds catalog filter query parameters.
type CourseFilterQuery struct {
	Name  string `form:"name"`
	Shift string `form:"shift"`
}
