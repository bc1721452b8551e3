// Package validation holds the admission rules checked before a student is enrolled in a course.
// Every rule is a pure check over a Candidate snapshot so it can run in isolation.
package validation

import (
	"fmt"
	"strings"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// MaxCreditsPerTerm is the default credit ceiling for a single term.
const MaxCreditsPerTerm = 20

// Rule names, in evaluation order.
const (
	RuleCourseExists        = "course_exists"
	RuleNotAlreadyCompleted = "not_already_completed"
	RulePrerequisites       = "prerequisites_satisfied"
	RuleCreditLimit         = "credit_limit"
	RuleNoScheduleConflict  = "no_schedule_conflict"
	RuleSeatsAvailable      = "seats_available"
)

// Candidate is the snapshot a rule is evaluated against.
type Candidate struct {
	Student *models.Student
	Course  *models.Course
	Term    models.Term
	// Current holds the student's enrollments; canceled ones and other terms are ignored.
	Current []models.EnrollmentDetail
}

// Rule is a named admission check.
type Rule struct {
	Name  string
	Check func(Candidate) error
}

// DefaultRules returns the admission rules in their fixed evaluation order.
func DefaultRules(maxCredits int) []Rule {
	if maxCredits <= 0 {
		maxCredits = MaxCreditsPerTerm
	}
	return []Rule{
		{Name: RuleCourseExists, Check: CourseExists},
		{Name: RuleNotAlreadyCompleted, Check: NotAlreadyCompleted},
		{Name: RulePrerequisites, Check: PrerequisitesSatisfied},
		{Name: RuleCreditLimit, Check: CreditLimitNotExceeded(maxCredits)},
		{Name: RuleNoScheduleConflict, Check: NoScheduleConflict},
		{Name: RuleSeatsAvailable, Check: SeatsAvailable},
	}
}

// Evaluate runs rules in order and returns the first failure.
func Evaluate(c Candidate, rules []Rule) error {
	_, err := FirstFailure(c, rules)
	return err
}

// FirstFailure is Evaluate that also names the rule that rejected the candidate.
func FirstFailure(c Candidate, rules []Rule) (string, error) {
	for _, rule := range rules {
		if err := rule.Check(c); err != nil {
			return rule.Name, err
		}
	}
	return "", nil
}

// CourseExists fails when the course is absent or has no code.
func CourseExists(c Candidate) error {
	if c.Course == nil {
		return appErrors.Clone(appErrors.ErrInvalidCourse, "course not found")
	}
	if strings.TrimSpace(c.Course.Code) == "" {
		return appErrors.Clone(appErrors.ErrInvalidCourse, "course code is missing")
	}
	return nil
}

// NotAlreadyCompleted fails when the student already passed the course.
func NotAlreadyCompleted(c Candidate) error {
	if c.Student.HasCompleted(c.Course.Code) {
		return violation("course already completed: %s", c.Course.Code)
	}
	return nil
}

// PrerequisitesSatisfied reports the first prerequisite the student has not completed.
func PrerequisitesSatisfied(c Candidate) error {
	for _, prerequisite := range c.Course.Prerequisites {
		if !c.Student.HasCompleted(prerequisite) {
			return violation("missing prerequisite: %s", prerequisite)
		}
	}
	return nil
}

// CreditLimitNotExceeded builds the credit ceiling rule.
func CreditLimitNotExceeded(maxCredits int) func(Candidate) error {
	return func(c Candidate) error {
		total := c.Course.Credits
		for _, e := range active(c) {
			if e.Course != nil {
				total += e.Course.Credits
			}
		}
		if total > maxCredits {
			return violation("maximum of %d credits exceeded", maxCredits)
		}
		return nil
	}
}

// NoScheduleConflict reports the first enrolled course whose schedule overlaps the candidate's.
func NoScheduleConflict(c Candidate) error {
	for _, e := range active(c) {
		if _, _, found := e.Course.ConflictsWithCourse(c.Course); found {
			return violation("schedule conflict between %s and %s", e.Course.Code, c.Course.Code)
		}
	}
	return nil
}

// SeatsAvailable fails when the course is full.
func SeatsAvailable(c Candidate) error {
	if !c.Course.HasAvailableSeats() {
		return violation("no seats available for course: %s", c.Course.Code)
	}
	return nil
}

func active(c Candidate) []models.EnrollmentDetail {
	out := make([]models.EnrollmentDetail, 0, len(c.Current))
	for _, e := range c.Current {
		if e.IsCanceled() || e.Term != c.Term {
			continue
		}
		out = append(out, e)
	}
	return out
}

func violation(format string, args ...interface{}) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrRuleViolation, fmt.Sprintf(format, args...))
}
