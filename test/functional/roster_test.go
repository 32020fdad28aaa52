//go:build functional

package functional

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/studenttracker/internal/model"
	"github.com/vyrodovalexey/studenttracker/internal/report"
	"github.com/vyrodovalexey/studenttracker/internal/store"
)

type studentResponse struct {
	Student model.Student `json:"student"`
	Message string        `json:"message"`
}

type listResponse struct {
	Students []model.Student `json:"students"`
	Entries  []string        `json:"entries"`
}

func TestFunctional_Roster_Workflow(t *testing.T) {
	ts := StartTestServer(t)

	t.Log("Step 1: add two students")
	for _, body := range []map[string]string{
		{"name": "Alice", "age": "20", "grade": "90"},
		{"name": "Bob", "age": "22", "grade": "70"},
	} {
		resp := ts.Do(t, http.MethodPost, "/api/v1/students", body)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", resp.Body)
	}

	t.Log("Step 2: reject a duplicate regardless of case")
	resp := ts.Do(t, http.MethodPost, "/api/v1/students", map[string]string{"name": "ALICE", "age": "30", "grade": "10"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "A student named 'ALICE' already exists.", resp.ErrorMessage(t))

	t.Log("Step 3: sort by grade")
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodPost, "/api/v1/students/sort", nil).StatusCode)
	var list listResponse
	ts.Do(t, http.MethodGet, "/api/v1/students", nil).Data(t, &list)
	assert.Equal(t, []string{"Bob  |  Age: 22  |  Grade: 70", "Alice  |  Age: 20  |  Grade: 90"}, list.Entries)

	t.Log("Step 4: average")
	var avg struct {
		Average float64 `json:"average"`
		Display string  `json:"display"`
	}
	ts.Do(t, http.MethodGet, "/api/v1/students/average", nil).Data(t, &avg)
	assert.InDelta(t, 80.0, avg.Average, 1e-9)
	assert.Equal(t, "Average grade: 80.00", avg.Display)

	t.Log("Step 5: rejected update leaves the record unchanged")
	resp = ts.Do(t, http.MethodPut, "/api/v1/students?name=bob", map[string]string{"age": "23", "grade": "200"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var found studentResponse
	ts.Do(t, http.MethodGet, "/api/v1/students?name=bob", nil).Data(t, &found)
	assert.Equal(t, model.Student{Name: "Bob", Age: 22, Grade: 70}, found.Student)

	t.Log("Step 6: delete and search")
	require.Equal(t, http.StatusOK, ts.Do(t, http.MethodDelete, "/api/v1/students?name=Alice", nil).StatusCode)
	resp = ts.Do(t, http.MethodGet, "/api/v1/students?name=alice", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No student found with name 'alice'.", resp.ErrorMessage(t))
}

func TestFunctional_Roster_NamesWithReservedCharacters(t *testing.T) {
	ts := StartTestServer(t)

	for _, name := range []string{"A/B", "sort"} {
		byName := "/api/v1/students?" + url.Values{"name": {name}}.Encode()

		resp := ts.Do(t, http.MethodPost, "/api/v1/students", map[string]string{"name": name, "age": "20", "grade": "70"})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", resp.Body)

		var found studentResponse
		ts.Do(t, http.MethodGet, byName, nil).Data(t, &found)
		assert.Equal(t, name, found.Student.Name)

		var updated studentResponse
		ts.Do(t, http.MethodPut, byName, map[string]string{"grade": "88"}).Data(t, &updated)
		assert.Equal(t, 88, updated.Student.Grade)

		require.Equal(t, http.StatusOK, ts.Do(t, http.MethodDelete, byName, nil).StatusCode)
		assert.Equal(t, http.StatusNotFound, ts.Do(t, http.MethodGet, byName, nil).StatusCode)
	}
}

func TestFunctional_Roster_SaveAndReload(t *testing.T) {
	// Arrange
	ts := StartTestServer(t)
	for _, body := range []map[string]string{
		{"name": "Smith, Jo", "age": "19", "grade": "88"},
		{"name": "Lee", "age": "21", "grade": "0"},
	} {
		require.Equal(t, http.StatusCreated, ts.Do(t, http.MethodPost, "/api/v1/students", body).StatusCode)
	}

	// Act
	resp := ts.Do(t, http.MethodPost, "/api/v1/students/save", nil)

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := os.ReadFile(ts.StudentsFile)
	require.NoError(t, err)
	assert.Equal(t, "name,age,grade\r\n\"Smith, Jo\",19,88\r\nLee,21,0\r\n", string(raw))

	reloaded := store.NewMemoryStore(store.NewCSVFile(ts.StudentsFile), zap.NewNop())
	n, err := reloaded.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	students, err := reloaded.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Student{{Name: "Smith, Jo", Age: 19, Grade: 88}, {Name: "Lee", Age: 21, Grade: 0}}, students)
}

func TestFunctional_Roster_ChartAndExport(t *testing.T) {
	ts := StartTestServer(t)

	resp := ts.Do(t, http.MethodGet, "/api/v1/students/chart", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "No students to visualize!", resp.ErrorMessage(t))

	require.Equal(t, http.StatusCreated,
		ts.Do(t, http.MethodPost, "/api/v1/students", map[string]string{"name": "Alice", "age": "20", "grade": "90"}).StatusCode)

	var chart struct {
		Names  []string `json:"names"`
		Grades []int    `json:"grades"`
	}
	ts.Do(t, http.MethodGet, "/api/v1/students/chart", nil).Data(t, &chart)
	assert.Equal(t, []string{"Alice"}, chart.Names)
	assert.Equal(t, []int{90}, chart.Grades)

	resp = ts.Do(t, http.MethodGet, "/api/v1/students/export.xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, report.ContentType, resp.Header.Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "age", "grade"}, {"Alice", "20", "90"}}, rows)
}

func TestFunctional_Metrics(t *testing.T) {
	ts := StartTestServer(t)
	require.Equal(t, http.StatusCreated,
		ts.Do(t, http.MethodPost, "/api/v1/students", map[string]string{"name": "Alice", "age": "20", "grade": "90"}).StatusCode)

	resp := ts.Do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(resp.Body)
	for _, metric := range []string{
		"studenttracker_http_requests_total",
		"studenttracker_roster_students",
		"studenttracker_roster_operations_total",
	} {
		assert.True(t, strings.Contains(body, metric), "missing %s", metric)
	}
}

func TestFunctional_Page(t *testing.T) {
	ts := StartTestServer(t)

	resp := ts.Do(t, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "<title>Student Tracker</title>")
}
