// Package roster holds the ordered in-memory collection of student records
// and the operations on it.
//
// A Roster is not safe for concurrent use. Callers that share one across
// goroutines serialize access themselves (see store.Store).
package roster

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vyrodovalexey/studenttracker/internal/model"
)

// Operation names carried by returned errors.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpDelete = "delete"
	OpChart  = "chart"
)

// ChartData holds parallel name and grade sequences in roster order.
type ChartData struct {
	Names  []string `json:"names"`
	Grades []int    `json:"grades"`
}

// Roster is an ordered sequence of students with unique names under
// case-insensitive comparison.
type Roster struct {
	students []model.Student
}

// New creates an empty Roster.
func New() *Roster {
	return &Roster{}
}

// Len returns the number of students.
func (r *Roster) Len() int {
	return len(r.students)
}

// Add appends a new student and returns a copy of it.
func (r *Roster) Add(name string, age, grade int) (model.Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Student{}, model.NewError(OpAdd, model.ErrEmptyField, "Name is required!")
	}

	if r.indexOf(name) >= 0 {
		return model.Student{}, duplicateError(name)
	}

	s := model.Student{Name: name, Age: age, Grade: grade}
	if err := s.Validate(OpAdd); err != nil {
		return model.Student{}, err
	}

	r.students = append(r.students, s)

	return s, nil
}

// AddText adds a student from raw form text. Every field is required; the
// duplicate check runs before age and grade are parsed.
func (r *Roster) AddText(nameText, ageText, gradeText string) (model.Student, error) {
	name := strings.TrimSpace(nameText)
	ageText = strings.TrimSpace(ageText)
	gradeText = strings.TrimSpace(gradeText)

	if name == "" || ageText == "" || gradeText == "" {
		return model.Student{}, model.NewError(OpAdd, model.ErrEmptyField,
			"All fields (Name, Age, Grade) are required!")
	}

	if r.indexOf(name) >= 0 {
		return model.Student{}, duplicateError(name)
	}

	age, err := model.ParseAge(OpAdd, ageText)
	if err != nil {
		return model.Student{}, err
	}

	grade, err := model.ParseGrade(OpAdd, gradeText)
	if err != nil {
		return model.Student{}, err
	}

	return r.Add(name, age, grade)
}

// Find returns the student whose name matches case-insensitively.
func (r *Roster) Find(name string) (model.Student, bool) {
	i := r.indexOf(strings.TrimSpace(name))
	if i < 0 {
		return model.Student{}, false
	}
	return r.students[i], true
}

// Update replaces the age and/or grade of a student. A nil value leaves the
// field as it is. Both values are validated before either is written.
func (r *Roster) Update(name string, newAge, newGrade *int) (model.Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Student{}, model.NewError(OpUpdate, model.ErrEmptyField,
			"Enter the student's name you want to update.")
	}

	i := r.indexOf(name)
	if i < 0 {
		return model.Student{}, notFoundError(OpUpdate, name)
	}

	if newAge != nil {
		if err := model.ValidateAge(OpUpdate, *newAge); err != nil {
			return model.Student{}, err
		}
	}
	if newGrade != nil {
		if err := model.ValidateGrade(OpUpdate, *newGrade); err != nil {
			return model.Student{}, err
		}
	}

	s := &r.students[i]
	if newAge != nil {
		s.Age = *newAge
	}
	if newGrade != nil {
		s.Grade = *newGrade
	}

	return *s, nil
}

// UpdateText updates a student from raw form text. Blank text means the
// field is not being changed.
func (r *Roster) UpdateText(name, ageText, gradeText string) (model.Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Student{}, model.NewError(OpUpdate, model.ErrEmptyField,
			"Enter the student's name you want to update.")
	}

	if r.indexOf(name) < 0 {
		return model.Student{}, notFoundError(OpUpdate, name)
	}

	var newAge, newGrade *int

	if ageText = strings.TrimSpace(ageText); ageText != "" {
		age, err := model.ParseAge(OpUpdate, ageText)
		if err != nil {
			return model.Student{}, err
		}
		newAge = &age
	}

	if gradeText = strings.TrimSpace(gradeText); gradeText != "" {
		grade, err := model.ParseGrade(OpUpdate, gradeText)
		if err != nil {
			return model.Student{}, err
		}
		newGrade = &grade
	}

	return r.Update(name, newAge, newGrade)
}

// Delete removes the student whose name matches and returns it. The rest
// keep their relative order.
func (r *Roster) Delete(name string) (model.Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Student{}, model.NewError(OpDelete, model.ErrEmptyField,
			"Enter the student's name you want to delete.")
	}

	i := r.indexOf(name)
	if i < 0 {
		return model.Student{}, notFoundError(OpDelete, name)
	}

	removed := r.students[i]
	r.students = slices.Delete(r.students, i, i+1)

	return removed, nil
}

// SortByGrade orders the students by ascending grade. Students with equal
// grades keep their current relative order.
func (r *Roster) SortByGrade() {
	slices.SortStableFunc(r.students, func(a, b model.Student) int {
		return a.Grade - b.Grade
	})
}

// Average returns the mean grade, or 0 for an empty roster. It folds the
// cumulative mean mean(n) = (mean(n-1)*(n-1) + g[n-1]) / n over the grades.
func (r *Roster) Average() float64 {
	var mean float64
	for i, s := range r.students {
		n := float64(i + 1)
		mean = (mean*(n-1) + float64(s.Grade)) / n
	}
	return mean
}

// Records returns a copy of the students in roster order.
func (r *Roster) Records() []model.Student {
	return slices.Clone(r.students)
}

// Entries returns the list-view line for every student in roster order.
func (r *Roster) Entries() []string {
	entries := make([]string, 0, len(r.students))
	for _, s := range r.students {
		entries = append(entries, s.Entry())
	}
	return entries
}

// ChartData returns parallel name and grade slices for plotting. An empty
// roster has nothing to plot and yields ErrNoData.
func (r *Roster) ChartData() (ChartData, error) {
	if len(r.students) == 0 {
		return ChartData{}, model.NewError(OpChart, model.ErrNoData, "No students to visualize!")
	}

	data := ChartData{
		Names:  make([]string, 0, len(r.students)),
		Grades: make([]int, 0, len(r.students)),
	}
	for _, s := range r.students {
		data.Names = append(data.Names, s.Name)
		data.Grades = append(data.Grades, s.Grade)
	}

	return data, nil
}

func (r *Roster) indexOf(name string) int {
	return slices.IndexFunc(r.students, func(s model.Student) bool {
		return strings.EqualFold(s.Name, name)
	})
}

func duplicateError(name string) error {
	return model.NewError(OpAdd, model.ErrDuplicateName,
		fmt.Sprintf("A student named '%s' already exists.", name))
}

func notFoundError(op, name string) error {
	return model.NewError(op, model.ErrNotFound,
		fmt.Sprintf("No student found with name '%s'.", name))
}
