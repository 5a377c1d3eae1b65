// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, and utils can all import types without depending
// on each other.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Student represents a student record in our system.
//
// Struct tags serve two purposes:
//
//  1. json:"..."  — controls how the field appears when encoded to JSON
//     (camelCase names match the public API).
//
//  2. validate:"..." — rules checked by the go-playground/validator
//     package. "required" means the field must be non-zero / non-empty,
//     "dive" applies the following rules to every slice element.
type Student struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"        validate:"required"`
	Email       string    `json:"email"       validate:"omitempty,email"`
	DateOfBirth time.Time `json:"dateOfBirth" validate:"required"`
	Gender      string    `json:"gender"      validate:"required"`
	Courses     []string  `json:"courses"     validate:"required,min=1,dive,required"`
}

// UnmarshalJSON accepts dateOfBirth in any of the layouts ParseDate knows,
// so clients can send "2000-01-01" as well as a full RFC 3339 timestamp.
func (s *Student) UnmarshalJSON(data []byte) error {
	// alias drops the method set so json.Unmarshal does not recurse.
	type alias Student
	aux := struct {
		*alias
		DateOfBirth *string `json:"dateOfBirth"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.DateOfBirth == nil || *aux.DateOfBirth == "" {
		s.DateOfBirth = time.Time{}
		return nil
	}

	dob, err := ParseDate(*aux.DateOfBirth)
	if err != nil {
		return fmt.Errorf("dateOfBirth: %w", err)
	}
	s.DateOfBirth = dob

	return nil
}

// MarshalJSON always emits dateOfBirth as RFC 3339 in UTC, keeping any
// fractional seconds, and courses as an array, never null.
func (s Student) MarshalJSON() ([]byte, error) {
	type alias Student
	courses := s.Courses
	if courses == nil {
		courses = []string{}
	}
	return json.Marshal(struct {
		alias
		DateOfBirth string   `json:"dateOfBirth"`
		Courses     []string `json:"courses"`
	}{
		alias:       alias(s),
		DateOfBirth: s.DateOfBirth.UTC().Format(time.RFC3339Nano),
		Courses:     courses,
	})
}

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 date or date-time. Values without a zone
// are read as UTC; the result is always normalised to UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected ISO-8601 date or date-time", value)
}

// StudentFilter is the set of optional predicates accepted by the filter
// endpoint. Empty strings and nil pointers impose no constraint; every
// present field narrows the result with AND.
type StudentFilter struct {
	Gender   string
	Course   string
	DobStart *time.Time
	DobEnd   *time.Time
}

// IsEmpty reports whether the filter has no predicates at all.
func (f StudentFilter) IsEmpty() bool {
	return f.Gender == "" && f.Course == "" && f.DobStart == nil && f.DobEnd == nil
}

// Matches evaluates the filter against a single record in memory.
// Stores translate the same predicates into SQL; this is the reference
// semantics they are tested against.
func (f StudentFilter) Matches(s Student) bool {
	if f.Gender != "" && s.Gender != f.Gender {
		return false
	}
	if f.Course != "" {
		found := false
		for _, c := range s.Courses {
			if c == f.Course {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DobStart != nil && s.DateOfBirth.Before(*f.DobStart) {
		return false
	}
	if f.DobEnd != nil && s.DateOfBirth.After(*f.DobEnd) {
		return false
	}
	return true
}
