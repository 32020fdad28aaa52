package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/studenttracker/internal/model"
)

// DefaultStudentsFile is the file written when no path is configured.
const DefaultStudentsFile = "students.txt"

const filePerm = 0o644

// csvHeader is the first row of every saved roster.
var csvHeader = []string{"name", "age", "grade"}

// CSVFile persists the roster as comma-separated text with a header row.
type CSVFile struct {
	path string
}

// NewCSVFile creates a CSVFile writing to path.
func NewCSVFile(path string) *CSVFile {
	if path == "" {
		path = DefaultStudentsFile
	}
	return &CSVFile{path: path}
}

// Path returns the target file path.
func (f *CSVFile) Path() string {
	return f.path
}

// Save writes the header and one row per student. The file is written to
// a temporary sibling first and renamed into place, so a failure leaves the
// previous contents intact.
func (f *CSVFile) Save(ctx context.Context, students []model.Student) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("save students: %w", ctx.Err())
	default:
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return saveError(err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return saveError(err)
	}

	if err := writeCSV(tmp, students); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return saveError(err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return saveError(err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return saveError(err)
	}

	return nil
}

// Load reads a file written by Save. A missing file is an empty roster.
func (f *CSVFile) Load(ctx context.Context) ([]model.Student, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load students: %w", ctx.Err())
	default:
	}

	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, loadError(err)
	}
	defer func() {
		_ = file.Close()
	}()

	students, err := readCSV(file)
	if err != nil {
		return nil, loadError(err)
	}

	return students, nil
}

func writeCSV(w io.Writer, students []model.Student) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, s := range students {
		row := []string{s.Name, strconv.Itoa(s.Age), strconv.Itoa(s.Grade)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row for %q: %w", s.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func readCSV(r io.Reader) ([]model.Student, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	for i, col := range csvHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return nil, fmt.Errorf("unexpected header %v", header)
		}
	}

	var students []model.Student
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		age, err := model.ParseAge(opLoad, row[1])
		if err != nil {
			return nil, fmt.Errorf("parsing age for %q: %w", row[0], err)
		}
		grade, err := model.ParseGrade(opLoad, row[2])
		if err != nil {
			return nil, fmt.Errorf("parsing grade for %q: %w", row[0], err)
		}

		students = append(students, model.Student{Name: row[0], Age: age, Grade: grade})
	}

	return students, nil
}

func saveError(err error) error {
	return model.WrapError(opSave, model.ErrIOFailure,
		fmt.Sprintf("Could not save file: %v", err), err)
}

func loadError(err error) error {
	return model.WrapError(opLoad, model.ErrIOFailure,
		fmt.Sprintf("Could not load file: %v", err), err)
}
