package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

const courseColumns = `c.id, c.code, c.name, c.credits, c.available_seats, c.shift, c.term_year, c.term_semester, c.created_at, c.updated_at`

type courseRow struct {
	ID             string    `db:"id"`
	Code           string    `db:"code"`
	Name           string    `db:"name"`
	Credits        int       `db:"credits"`
	AvailableSeats int       `db:"available_seats"`
	Shift          string    `db:"shift"`
	TermYear       int       `db:"term_year"`
	TermSemester   int       `db:"term_semester"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r courseRow) toModel() *models.Course {
	return &models.Course{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Credits:        r.Credits,
		AvailableSeats: r.AvailableSeats,
		Shift:          r.Shift,
		Term:           models.Term{Year: r.TermYear, Semester: r.TermSemester},
		Schedule:       []models.ClassSchedule{},
		Prerequisites:  []string{},
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type scheduleRow struct {
	CourseID string `db:"course_id"`
	models.ClassSchedule
}

type prerequisiteRow struct {
	CourseID string `db:"course_id"`
	Code     string `db:"prerequisite_code"`
}

// CourseRepository handles persistence of the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByCode returns a course with its schedule and prerequisites.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c WHERE c.code = $1`, courseColumns)
	return r.getOne(ctx, query, code)
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c WHERE c.id = $1`, courseColumns)
	return r.getOne(ctx, query, id)
}

// List returns the full catalog ordered by code.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c ORDER BY c.code ASC`, courseColumns)
	return r.selectMany(ctx, "list courses", query)
}

// FindByFilter matches name and shift case-insensitively as literal substrings; blank fields are ignored.
func (r *CourseRepository) FindByFilter(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	var conditions []string
	var args []interface{}

	if name := strings.TrimSpace(filter.Name); name != "" {
		args = append(args, containsPattern(name))
		conditions = append(conditions, fmt.Sprintf("LOWER(c.name) LIKE $%d", len(args)))
	}
	if shift := strings.TrimSpace(filter.Shift); shift != "" {
		args = append(args, containsPattern(shift))
		conditions = append(conditions, fmt.Sprintf("LOWER(c.shift) LIKE $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM courses c%s ORDER BY c.code ASC`, courseColumns, clause)
	return r.selectMany(ctx, "filter courses", query, args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a lower-cased LIKE pattern matching raw literally as a substring.
func containsPattern(raw string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(raw)) + "%"
}

// FindByEnrollmentID returns the course bound to an enrollment, if it still exists.
func (r *CourseRepository) FindByEnrollmentID(ctx context.Context, enrollmentID string) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c JOIN enrollments e ON e.course_id = c.id WHERE e.id = $1`, courseColumns)
	return r.selectMany(ctx, "find courses by enrollment", query, enrollmentID)
}

// FindByIDs returns courses keyed by id.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error) {
	result := make(map[string]*models.Course, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM courses c WHERE c.id IN (?)`, courseColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("build course id query: %w", err)
	}
	courses, err := r.selectMany(ctx, "find courses by ids", r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		result[courses[i].ID] = &courses[i]
	}
	return result, nil
}

func (r *CourseRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Course, error) {
	var row courseRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	course := row.toModel()
	if err := r.hydrate(ctx, []*models.Course{course}); err != nil {
		return nil, err
	}
	return course, nil
}

func (r *CourseRepository) selectMany(ctx context.Context, op, query string, args ...interface{}) ([]models.Course, error) {
	var rows []courseRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	courses := make([]models.Course, len(rows))
	refs := make([]*models.Course, len(rows))
	for i, row := range rows {
		courses[i] = *row.toModel()
		refs[i] = &courses[i]
	}
	if err := r.hydrate(ctx, refs); err != nil {
		return nil, err
	}
	return courses, nil
}

// hydrate loads schedules and prerequisites for the given courses in two queries.
func (r *CourseRepository) hydrate(ctx context.Context, courses []*models.Course) error {
	if len(courses) == 0 {
		return nil
	}
	byID := make(map[string]*models.Course, len(courses))
	ids := make([]string, 0, len(courses))
	for _, course := range courses {
		byID[course.ID] = course
		ids = append(ids, course.ID)
	}

	query, args, err := sqlx.In(`SELECT course_id, day_of_week, start_time, end_time FROM course_schedules WHERE course_id IN (?) ORDER BY course_id, position`, ids)
	if err != nil {
		return fmt.Errorf("build schedule query: %w", err)
	}
	var slots []scheduleRow
	if err := r.db.SelectContext(ctx, &slots, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("load course schedules: %w", err)
	}
	for _, slot := range slots {
		if course, ok := byID[slot.CourseID]; ok {
			course.Schedule = append(course.Schedule, slot.ClassSchedule)
		}
	}

	query, args, err = sqlx.In(`SELECT course_id, prerequisite_code FROM course_prerequisites WHERE course_id IN (?) ORDER BY course_id, position`, ids)
	if err != nil {
		return fmt.Errorf("build prerequisite query: %w", err)
	}
	var prerequisites []prerequisiteRow
	if err := r.db.SelectContext(ctx, &prerequisites, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("load course prerequisites: %w", err)
	}
	for _, p := range prerequisites {
		if course, ok := byID[p.CourseID]; ok {
			course.Prerequisites = append(course.Prerequisites, p.Code)
		}
	}
	return nil
}
