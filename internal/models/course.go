package models

import (
	"errors"
	"time"
)

// ErrSeatExhausted is returned when a seat is taken from a course that has none left.
var ErrSeatExhausted = errors.New("no seats available")

// Course is a catalog offering a student can enroll in.
type Course struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Credits        int             `json:"credits"`
	AvailableSeats int             `json:"available_seats"`
	Shift          string          `json:"shift"`
	Term           Term            `json:"term"`
	Schedule       []ClassSchedule `json:"schedule"`
	Prerequisites  []string        `json:"prerequisites"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CourseFilter narrows catalog listings. Empty fields match any value.
type CourseFilter struct {
	Name  string
	Shift string
}

// HasAvailableSeats reports whether at least one seat is left.
func (c *Course) HasAvailableSeats() bool {
	return c.AvailableSeats > 0
}

// DecreaseSeat takes one seat, refusing to go below zero.
func (c *Course) DecreaseSeat() error {
	if c.AvailableSeats <= 0 {
		return ErrSeatExhausted
	}
	c.AvailableSeats--
	return nil
}

// IncreaseSeat returns a seat to the course.
// No capacity ceiling is enforced; the catalog does not track original capacity.
func (c *Course) IncreaseSeat() {
	c.AvailableSeats++
}

// ConflictsWithCourse returns the first pair of overlapping slots between c and other.
func (c *Course) ConflictsWithCourse(other *Course) (mine, theirs ClassSchedule, found bool) {
	if c == nil || other == nil {
		return ClassSchedule{}, ClassSchedule{}, false
	}
	for _, a := range c.Schedule {
		for _, b := range other.Schedule {
			if a.ConflictsWith(b) {
				return a, b, true
			}
		}
	}
	return ClassSchedule{}, ClassSchedule{}, false
}
