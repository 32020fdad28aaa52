// Package store serializes access to the roster for the presentation layer
// and persists it to disk.
package store

import (
	"context"

	"github.com/vyrodovalexey/studenttracker/internal/model"
	"github.com/vyrodovalexey/studenttracker/internal/roster"
)

// Store defines the roster operations offered to the presentation layer.
type Store interface {
	// List returns all students in roster order.
	List(ctx context.Context) ([]model.Student, error)

	// Entries returns the list-view line of every student in roster order.
	Entries(ctx context.Context) ([]string, error)

	// Find retrieves a student by case-insensitive name.
	Find(ctx context.Context, name string) (*model.Student, error)

	// Add validates raw form text and appends a new student.
	Add(ctx context.Context, name, age, grade string) (*model.Student, error)

	// Update changes age and/or grade; blank text leaves a field unchanged.
	Update(ctx context.Context, name, age, grade string) (*model.Student, error)

	// Delete removes a student by name and returns the removed record.
	Delete(ctx context.Context, name string) (*model.Student, error)

	// SortByGrade stably sorts the roster by ascending grade.
	SortByGrade(ctx context.Context) error

	// Average returns the mean grade and the number of students it covers,
	// read together. The mean is 0 when the roster is empty.
	Average(ctx context.Context) (float64, int, error)

	// ChartData returns names and grades for plotting.
	ChartData(ctx context.Context) (roster.ChartData, error)

	// Save writes the roster through the configured persister.
	Save(ctx context.Context) (string, error)
}

// Persister writes and reads roster snapshots.
type Persister interface {
	Save(ctx context.Context, students []model.Student) error
	Load(ctx context.Context) ([]model.Student, error)
	Path() string
}

// ChangeListener receives the list view after every successful mutation.
type ChangeListener func(entries []string)

// Notifier is implemented by stores that report successful mutations.
type Notifier interface {
	Subscribe(l ChangeListener)
}
