package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/studenttracker/internal/model"
	"github.com/vyrodovalexey/studenttracker/internal/report"
	"github.com/vyrodovalexey/studenttracker/internal/store"
)

// exportFilename is offered to the browser for the workbook download.
const exportFilename = "students.xlsx"

// nameParam is the query parameter that addresses one student.
const nameParam = "name"

// FormValue is raw form text. JSON numbers are accepted and kept as their
// literal text, so validation sees exactly what the client sent.
type FormValue string

// UnmarshalJSON accepts a string, a number or null.
func (v *FormValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FormValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("form value must be a string or a number: %w", err)
	}
	*v = FormValue(n.String())
	return nil
}

// AddRequest is the body of POST /api/v1/students.
type AddRequest struct {
	Name  FormValue `json:"name"`
	Age   FormValue `json:"age"`
	Grade FormValue `json:"grade"`
}

// UpdateRequest is the body of PUT /api/v1/students?name=. Blank fields
// are left unchanged.
type UpdateRequest struct {
	Age   FormValue `json:"age"`
	Grade FormValue `json:"grade"`
}

// ListResponse carries the records and their list-view lines.
type ListResponse struct {
	Students []model.Student `json:"students"`
	Entries  []string        `json:"entries"`
}

// StudentResponse carries one record and the status line to show.
type StudentResponse struct {
	Student model.Student `json:"student"`
	Message string        `json:"message"`
}

// AverageResponse carries the mean grade and its display text.
type AverageResponse struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
	Display string  `json:"display"`
}

// MessageResponse carries a status line.
type MessageResponse struct {
	Message string `json:"message"`
}

// SaveResponse carries the written path.
type SaveResponse struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// RESTHandler handles REST API requests for the roster.
type RESTHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(s store.Store, logger *zap.Logger) *RESTHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTHandler{
		store:  s,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router. A single
// student is addressed by the name query parameter, so any stored name is
// reachable and none collides with the fixed action paths.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1/students").Subrouter()
	api.HandleFunc("", h.FindStudent).Methods(http.MethodGet).MatcherFunc(hasNameQuery)
	api.HandleFunc("", h.ListStudents).Methods(http.MethodGet)
	api.HandleFunc("", h.AddStudent).Methods(http.MethodPost)
	api.HandleFunc("", h.UpdateStudent).Methods(http.MethodPut)
	api.HandleFunc("", h.DeleteStudent).Methods(http.MethodDelete)
	api.HandleFunc("/sort", h.SortStudents).Methods(http.MethodPost)
	api.HandleFunc("/average", h.Average).Methods(http.MethodGet)
	api.HandleFunc("/chart", h.Chart).Methods(http.MethodGet)
	api.HandleFunc("/save", h.Save).Methods(http.MethodPost)
	api.HandleFunc("/export.xlsx", h.Export).Methods(http.MethodGet)
}

func hasNameQuery(r *http.Request, _ *mux.RouteMatch) bool {
	return r.URL.Query().Has(nameParam)
}

// studentName returns the decoded name query parameter.
func studentName(r *http.Request) string {
	return r.URL.Query().Get(nameParam)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(response))
}

// ListStudents handles GET /api/v1/students requests.
func (h *RESTHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	students, err := h.store.List(ctx)
	if err != nil {
		h.handleStoreError(w, err, "list students")
		return
	}

	entries := make([]string, len(students))
	for i, s := range students {
		entries[i] = s.Entry()
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(ListResponse{
		Students: students,
		Entries:  entries,
	}))
}

// AddStudent handles POST /api/v1/students requests.
func (h *RESTHandler) AddStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input AddRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	student, err := h.store.Add(ctx, string(input.Name), string(input.Age), string(input.Grade))
	if err != nil {
		h.handleStoreError(w, err, "add student")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, model.NewSuccessResponse(StudentResponse{
		Student: *student,
		Message: fmt.Sprintf("Student '%s' added!", student.Name),
	}))
}

// FindStudent handles GET /api/v1/students?name= requests.
func (h *RESTHandler) FindStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := studentName(r)

	student, err := h.store.Find(ctx, name)
	if err != nil {
		h.handleStoreError(w, err, "find student")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(StudentResponse{
		Student: *student,
		Message: "Found: " + student.Entry(),
	}))
}

// UpdateStudent handles PUT /api/v1/students?name= requests. An empty
// body updates nothing.
func (h *RESTHandler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := studentName(r)

	var input UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	student, err := h.store.Update(ctx, name, string(input.Age), string(input.Grade))
	if err != nil {
		h.handleStoreError(w, err, "update student")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(StudentResponse{
		Student: *student,
		Message: fmt.Sprintf("Student '%s' updated.", student.Name),
	}))
}

// DeleteStudent handles DELETE /api/v1/students?name= requests and
// returns the removed record.
func (h *RESTHandler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := studentName(r)

	student, err := h.store.Delete(ctx, name)
	if err != nil {
		h.handleStoreError(w, err, "delete student")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(StudentResponse{
		Student: *student,
		Message: fmt.Sprintf("Student '%s' deleted.", student.Name),
	}))
}

// SortStudents handles POST /api/v1/students/sort requests.
func (h *RESTHandler) SortStudents(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SortByGrade(r.Context()); err != nil {
		h.handleStoreError(w, err, "sort students")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(MessageResponse{
		Message: "Students sorted by grade (ascending).",
	}))
}

// Average handles GET /api/v1/students/average requests.
func (h *RESTHandler) Average(w http.ResponseWriter, r *http.Request) {
	avg, count, err := h.store.Average(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "average")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(AverageResponse{
		Average: avg,
		Count:   count,
		Display: averageDisplay(avg, count),
	}))
}

// Chart handles GET /api/v1/students/chart requests.
func (h *RESTHandler) Chart(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.ChartData(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "chart")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(data))
}

// Save handles POST /api/v1/students/save requests.
func (h *RESTHandler) Save(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.Save(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "save students")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(SaveResponse{
		Path:    path,
		Message: "Students saved to " + path,
	}))
}

// Export handles GET /api/v1/students/export.xlsx requests. The workbook
// is built in memory so a failure can still be reported as JSON.
func (h *RESTHandler) Export(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.List(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "export")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, students); err != nil {
		h.handleStoreError(w, err, "export")
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("failed to write workbook", zap.Error(err))
	}
}

// handleStoreError maps roster error kinds to HTTP status codes and writes
// the user-facing message.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("roster operation failed", zap.String("operation", operation), zap.Error(err))
	} else {
		h.logger.Warn("roster operation rejected", zap.String("operation", operation), zap.Error(err))
	}

	message := model.Message(err)
	if status == http.StatusInternalServerError && !errors.Is(err, model.ErrIOFailure) {
		message = "internal server error"
	}

	writeError(w, h.logger, status, message)
}

// statusFor returns the HTTP status for an error kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrEmptyField),
		errors.Is(err, model.ErrInvalidAge),
		errors.Is(err, model.ErrInvalidGrade):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNoData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// averageDisplay formats the mean with two decimals.
func averageDisplay(avg float64, count int) string {
	if count == 0 {
		return "No students to calculate average."
	}
	return fmt.Sprintf("Average grade: %.2f", avg)
}
