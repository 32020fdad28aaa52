package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/studenttracker/internal/model"
	"github.com/vyrodovalexey/studenttracker/internal/roster"
)

// Operation labels.
const (
	opAdd    = "add"
	opUpdate = "update"
	opDelete = "delete"
	opSort   = "sort"
	opSave   = "save"
	opLoad   = "load"
)

// Prometheus metrics.
var (
	rosterStudents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studenttracker",
			Name:      "roster_students",
			Help:      "Number of students currently on the roster",
		},
	)

	rosterOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studenttracker",
			Name:      "roster_operations_total",
			Help:      "Total number of roster operations by outcome",
		},
		[]string{"operation", "result"},
	)
)

// MemoryStore implements Store over a single in-memory roster. The roster
// itself is single-threaded; MemoryStore runs every call under one mutex.
type MemoryStore struct {
	mu        sync.Mutex
	roster    *roster.Roster
	persister Persister
	logger    *zap.Logger
	listeners []ChangeListener
}

// NewMemoryStore creates a MemoryStore with an empty roster.
func NewMemoryStore(persister Persister, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	rosterStudents.Set(0)

	return &MemoryStore{
		roster:    roster.New(),
		persister: persister,
		logger:    logger,
	}
}

// Subscribe registers a listener for list-view refreshes.
func (s *MemoryStore) Subscribe(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
}

// List returns all students in roster order.
func (s *MemoryStore) List(ctx context.Context) ([]model.Student, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list students: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roster.Records(), nil
}

// Entries returns the list-view line of every student.
func (s *MemoryStore) Entries(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list entries: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roster.Entries(), nil
}

// Find retrieves a student by case-insensitive name.
func (s *MemoryStore) Find(ctx context.Context, name string) (*model.Student, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("find student: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, ok := s.roster.Find(name)
	if !ok {
		return nil, model.NewError("find", model.ErrNotFound,
			fmt.Sprintf("No student found with name '%s'.", strings.TrimSpace(name)))
	}

	return &student, nil
}

// Add validates raw form text and appends a new student.
func (s *MemoryStore) Add(ctx context.Context, name, age, grade string) (*model.Student, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("add student: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, err := s.roster.AddText(name, age, grade)
	s.record(opAdd, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("student added", zap.String("name", student.Name))
	rosterStudents.Set(float64(s.roster.Len()))
	s.notify()

	return &student, nil
}

// Update changes age and/or grade of an existing student.
func (s *MemoryStore) Update(ctx context.Context, name, age, grade string) (*model.Student, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("update student: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, err := s.roster.UpdateText(name, age, grade)
	s.record(opUpdate, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("student updated", zap.String("name", student.Name))
	s.notify()

	return &student, nil
}

// Delete removes a student by name.
func (s *MemoryStore) Delete(ctx context.Context, name string) (*model.Student, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("delete student: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, err := s.roster.Delete(name)
	s.record(opDelete, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("student deleted", zap.String("name", student.Name))
	rosterStudents.Set(float64(s.roster.Len()))
	s.notify()

	return &student, nil
}

// SortByGrade stably sorts the roster by ascending grade.
func (s *MemoryStore) SortByGrade(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("sort students: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.roster.SortByGrade()
	s.record(opSort, nil)
	s.logger.Debug("roster sorted by grade", zap.Int("students", s.roster.Len()))
	s.notify()

	return nil
}

// Average returns the mean grade and the student count from one snapshot.
func (s *MemoryStore) Average(ctx context.Context) (float64, int, error) {
	select {
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("average grade: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roster.Average(), s.roster.Len(), nil
}

// ChartData returns names and grades for plotting.
func (s *MemoryStore) ChartData(ctx context.Context) (roster.ChartData, error) {
	select {
	case <-ctx.Done():
		return roster.ChartData{}, fmt.Errorf("chart data: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roster.ChartData()
}

// Save writes a snapshot of the roster through the persister and returns
// the path written. A failed save leaves the roster untouched.
func (s *MemoryStore) Save(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("save students: %w", ctx.Err())
	default:
	}

	if s.persister == nil {
		return "", model.NewError(opSave, model.ErrIOFailure, "No students file configured.")
	}

	s.mu.Lock()
	snapshot := s.roster.Records()
	s.mu.Unlock()

	err := s.persister.Save(ctx, snapshot)
	s.record(opSave, err)
	if err != nil {
		s.logger.Error("failed to save students",
			zap.String("path", s.persister.Path()),
			zap.Error(err),
		)
		return "", err
	}

	s.logger.Info("students saved",
		zap.String("path", s.persister.Path()),
		zap.Int("students", len(snapshot)),
	)

	return s.persister.Path(), nil
}

// Load reads a saved roster and adds every row through the roster's
// validation. It is meant for startup, before any other call.
func (s *MemoryStore) Load(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}

	students, err := s.persister.Load(ctx)
	if err != nil {
		s.record(opLoad, err)
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, st := range students {
		if _, err := s.roster.Add(st.Name, st.Age, st.Grade); err != nil {
			s.logger.Warn("skipping saved student",
				zap.String("name", st.Name),
				zap.Error(err),
			)
			continue
		}
		loaded++
	}

	s.record(opLoad, nil)
	rosterStudents.Set(float64(s.roster.Len()))

	return loaded, nil
}

// record counts an operation by outcome.
func (s *MemoryStore) record(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	rosterOperationsTotal.WithLabelValues(op, result).Inc()
}

// notify pushes the list view to listeners. Callers hold mu so that
// refreshes are delivered in mutation order.
func (s *MemoryStore) notify() {
	if len(s.listeners) == 0 {
		return
	}

	entries := s.roster.Entries()
	for _, l := range s.listeners {
		l(entries)
	}
}
