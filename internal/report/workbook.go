// Package report renders the roster for viewing outside the application.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/vyrodovalexey/studenttracker/internal/model"
)

// Workbook layout.
const (
	SheetName  = "Students"
	ChartTitle = "Student Grades"
	chartCell  = "E2"
	opExport   = "export"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteWorkbook writes an xlsx workbook with the students on one sheet and
// a column chart of their grades next to the table. An empty roster has
// nothing to chart and yields ErrNoData.
func WriteWorkbook(w io.Writer, students []model.Student) error {
	if len(students) == 0 {
		return model.NewError(opExport, model.ErrNoData, "No students to visualize!")
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return exportError(err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &[]any{"name", "age", "grade"}); err != nil {
		return exportError(err)
	}

	for i, s := range students {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return exportError(err)
		}
		if err := f.SetSheetRow(SheetName, cell, &[]any{s.Name, s.Age, s.Grade}); err != nil {
			return exportError(err)
		}
	}

	if err := f.AddChart(SheetName, chartCell, gradeChart(len(students))); err != nil {
		return exportError(err)
	}

	if err := f.Write(w); err != nil {
		return exportError(err)
	}

	return nil
}

func gradeChart(rows int) *excelize.Chart {
	last := rows + 1
	minGrade, maxGrade := float64(model.MinGrade), float64(model.MaxGrade)

	return &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{
			{
				Name:       fmt.Sprintf("%s!$C$1", SheetName),
				Categories: fmt.Sprintf("%s!$A$2:$A$%d", SheetName, last),
				Values:     fmt.Sprintf("%s!$C$2:$C$%d", SheetName, last),
			},
		},
		Title: []excelize.RichTextRun{{Text: ChartTitle}},
		XAxis: excelize.ChartAxis{
			Title: []excelize.RichTextRun{{Text: "Students"}},
		},
		YAxis: excelize.ChartAxis{
			Title:   []excelize.RichTextRun{{Text: "Grades"}},
			Minimum: &minGrade,
			Maximum: &maxGrade,
		},
		Legend: excelize.ChartLegend{Position: "none"},
	}
}

func exportError(err error) error {
	return model.WrapError(opExport, model.ErrIOFailure,
		fmt.Sprintf("Could not build workbook: %v", err), err)
}
