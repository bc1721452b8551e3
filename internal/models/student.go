package models

import "time"

// Student represents a learner; the ID is issued by the institution.
type Student struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	CompletedCourses []string  `db:"-" json:"completed_courses"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// HasCompleted reports whether the course code is in the student's completed list.
func (s *Student) HasCompleted(code string) bool {
	if s == nil {
		return false
	}
	for _, completed := range s.CompletedCourses {
		if completed == code {
			return true
		}
	}
	return false
}
