package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// memoryCatalog is an in-memory course and enrollment store. Seat changes and
// enrollment writes happen under one lock, mirroring the repository transaction.
type memoryCatalog struct {
	mu          sync.Mutex
	courses     map[string]*models.Course
	enrollments map[string]*models.Enrollment
	order       []string
	students    map[string]*models.Student

	admitErr    error
	cancelErr   error
	listErr     error
	filterCalls int
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		courses:     map[string]*models.Course{},
		enrollments: map[string]*models.Enrollment{},
		students:    map[string]*models.Student{},
	}
}

func (m *memoryCatalog) addCourse(c *models.Course) *models.Course {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
	return c
}

func (m *memoryCatalog) addStudent(s *models.Student) *models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return s
}

func (m *memoryCatalog) addEnrollment(e *models.Enrollment) *models.Enrollment {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.ID] = e
	m.order = append(m.order, e.ID)
	return e
}

func (m *memoryCatalog) seats(courseID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.courses[courseID].AvailableSeats
}

func (m *memoryCatalog) enrollmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

func (m *memoryCatalog) enrollment(id string) models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.enrollments[id]
}

func cloneCourse(c *models.Course) *models.Course {
	out := *c
	out.Schedule = append([]models.ClassSchedule{}, c.Schedule...)
	out.Prerequisites = append([]string{}, c.Prerequisites...)
	return &out
}

// course store

func (m *memoryCatalog) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.Code == code {
			return cloneCourse(c), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryCatalog) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.Course, len(ids))
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			out[id] = cloneCourse(c)
		}
	}
	return out, nil
}

func (m *memoryCatalog) List(ctx context.Context) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, *cloneCourse(c))
	}
	return out, nil
}

func (m *memoryCatalog) FindByFilter(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterCalls++
	out := []models.Course{}
	for _, c := range m.courses {
		if filter.Name != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Shift != "" && !strings.Contains(strings.ToLower(c.Shift), strings.ToLower(filter.Shift)) {
			continue
		}
		out = append(out, *cloneCourse(c))
	}
	return out, nil
}

func (m *memoryCatalog) FindByEnrollmentID(ctx context.Context, enrollmentID string) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[enrollmentID]
	if !ok {
		return []models.Course{}, nil
	}
	c, ok := m.courses[e.CourseID]
	if !ok {
		return []models.Course{}, nil
	}
	return []models.Course{*cloneCourse(c)}, nil
}

// student store

func (m *memoryCatalog) studentByID(ctx context.Context, id string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *s
	return &out, nil
}

type memoryStudents struct{ catalog *memoryCatalog }

func (s memoryStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return s.catalog.studentByID(ctx, id)
}

// enrollment store, exposed through memoryEnrollments to avoid clashing with course FindByID.

type memoryEnrollments struct{ catalog *memoryCatalog }

func (s memoryEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m := s.catalog
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *e
	return &out, nil
}

func (s memoryEnrollments) ExistsByID(ctx context.Context, id string) (bool, error) {
	m := s.catalog
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.enrollments[id]
	return ok, nil
}

func (s memoryEnrollments) ListByStudentAndTerm(ctx context.Context, studentID string, term models.Term) ([]models.Enrollment, error) {
	m := s.catalog
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []models.Enrollment{}
	for _, id := range m.order {
		e := m.enrollments[id]
		if e.StudentID == studentID && e.Term == term {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s memoryEnrollments) SumCreditsByStudentAndTerm(ctx context.Context, studentID string, term models.Term) (int, error) {
	m := s.catalog
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, e := range m.enrollments {
		if e.StudentID != studentID || e.Term != term || e.IsCanceled() {
			continue
		}
		if c, ok := m.courses[e.CourseID]; ok {
			total += c.Credits
		}
	}
	return total, nil
}

func (s memoryEnrollments) Admit(ctx context.Context, enrollment *models.Enrollment) error {
	m := s.catalog
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admitErr != nil {
		return m.admitErr
	}
	course, ok := m.courses[enrollment.CourseID]
	if !ok {
		return fmt.Errorf("course %s missing", enrollment.CourseID)
	}
	for _, e := range m.enrollments {
		if e.StudentID == enrollment.StudentID && e.CourseID == enrollment.CourseID && e.Term == enrollment.Term && !e.IsCanceled() {
			return models.ErrAlreadyEnrolled
		}
	}
	if err := course.DecreaseSeat(); err != nil {
		return err
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	stored := *enrollment
	m.enrollments[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return nil
}

func (s memoryEnrollments) Cancel(ctx context.Context, id string, canceledAt time.Time) error {
	m := s.catalog
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	if err := e.Cancel(canceledAt); err != nil {
		return err
	}
	if c, ok := m.courses[e.CourseID]; ok {
		c.IncreaseSeat()
	}
	return nil
}

type recordedAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (r *recordedAudit) Record(entry models.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordedAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// memoryCache satisfies CacheRepository for course slices.
type memoryCache struct {
	mu          sync.Mutex
	values      map[string]interface{}
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]interface{}{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	courses, ok := v.([]models.Course)
	target, okDest := dest.(*[]models.Course)
	if !ok || !okDest {
		return fmt.Errorf("unexpected cache types")
	}
	*target = append([]models.Course{}, courses...)
	return nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, pattern)
	c.values = map[string]interface{}{}
	return nil
}

func (c *memoryCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.invalidated)
}
