// Package model defines data structures used throughout the application.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validation limits for Student.
const (
	MinAge   = 1
	MinGrade = 0
	MaxGrade = 100
)

// Student is one roster record. Name is the case-insensitive key and is
// never changed after the record is stored.
type Student struct {
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Grade int    `json:"grade"`
}

// Entry formats the student for the roster list view.
func (s Student) Entry() string {
	return fmt.Sprintf("%s  |  Age: %d  |  Grade: %d", s.Name, s.Age, s.Grade)
}

// Validate checks the age and grade ranges and that the name is not blank.
func (s *Student) Validate(op string) error {
	if strings.TrimSpace(s.Name) == "" {
		return NewError(op, ErrEmptyField, "Name is required!")
	}

	if err := ValidateAge(op, s.Age); err != nil {
		return err
	}

	return ValidateGrade(op, s.Grade)
}

// ValidateAge reports whether age is a positive whole number.
func ValidateAge(op string, age int) error {
	if age < MinAge {
		return NewError(op, ErrInvalidAge, "Age must be a positive whole number!")
	}
	return nil
}

// ValidateGrade reports whether grade lies in [MinGrade, MaxGrade].
func ValidateGrade(op string, grade int) error {
	if grade < MinGrade || grade > MaxGrade {
		return NewError(op, ErrInvalidGrade, "Grade must be between 0 and 100!")
	}
	return nil
}

// ParseAge parses raw form text into an age. Only plain ASCII digits are
// accepted, so signs, decimals and whitespace inside the number fail.
func ParseAge(op, text string) (int, error) {
	age, ok := parseDigits(text)
	if !ok {
		return 0, NewError(op, ErrInvalidAge, "Age must be a positive whole number!")
	}

	if err := ValidateAge(op, age); err != nil {
		return 0, err
	}

	return age, nil
}

// ParseGrade parses raw form text into a grade.
func ParseGrade(op, text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	if !isDigits(trimmed) {
		return 0, NewError(op, ErrInvalidGrade, "Grade must be a number between 0 and 100!")
	}

	grade, ok := parseDigits(trimmed)
	if !ok {
		// digits only, so the value overflowed and is far above MaxGrade
		return 0, NewError(op, ErrInvalidGrade, "Grade must be between 0 and 100!")
	}

	if err := ValidateGrade(op, grade); err != nil {
		return 0, err
	}

	return grade, nil
}

func parseDigits(text string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	if !isDigits(trimmed) {
		return 0, false
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}

	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WebSocketMessage is pushed to list views over the WebSocket connection.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Entries   []string  `json:"entries"`
	Timestamp time.Time `json:"timestamp"`
}

// WSMessageTypeRosterUpdated marks a list-view refresh.
const WSMessageTypeRosterUpdated = "roster_updated"

// NewRosterUpdatedMessage creates a list-view refresh message.
func NewRosterUpdatedMessage(entries []string) WebSocketMessage {
	if entries == nil {
		entries = []string{}
	}
	return WebSocketMessage{
		Type:      WSMessageTypeRosterUpdated,
		Entries:   entries,
		Timestamp: time.Now().UTC(),
	}
}
