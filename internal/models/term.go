package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Term identifies an academic term by year and semester. Terms compare by value.
type Term struct {
	Year     int `json:"year"`
	Semester int `json:"semester"`
}

// NewTerm validates and builds a Term.
func NewTerm(year, semester int) (Term, error) {
	if year <= 0 {
		return Term{}, fmt.Errorf("invalid term year %d", year)
	}
	if semester != 1 && semester != 2 {
		return Term{}, fmt.Errorf("invalid term semester %d", semester)
	}
	return Term{Year: year, Semester: semester}, nil
}

// CurrentTerm derives the term for the given instant: January to June is the first semester.
func CurrentTerm(now time.Time) Term {
	semester := 2
	if now.Month() <= time.June {
		semester = 1
	}
	return Term{Year: now.Year(), Semester: semester}
}

// ParseTerm parses the "2025.1" representation produced by String.
func ParseTerm(raw string) (Term, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 {
		return Term{}, fmt.Errorf("invalid term %q", raw)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Term{}, fmt.Errorf("invalid term year %q: %w", parts[0], err)
	}
	semester, err := strconv.Atoi(parts[1])
	if err != nil {
		return Term{}, fmt.Errorf("invalid term semester %q: %w", parts[1], err)
	}
	return NewTerm(year, semester)
}

// IsZero reports whether the term was never set.
func (t Term) IsZero() bool {
	return t.Year == 0 && t.Semester == 0
}

func (t Term) String() string {
	return fmt.Sprintf("%d.%d", t.Year, t.Semester)
}
