package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/internal/repository"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

// MemoryRunStore keeps run records in process for deployments without Postgres.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewMemoryRunStore constructs an empty store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*models.Run)}
}

// Create inserts a run, filling the same defaults as the Postgres repository.
func (s *MemoryRunStore) Create(_ context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Artifacts == nil {
		run.Artifacts = models.ArtifactSet{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return appErrors.Clone(appErrors.ErrConflict, "run already exists")
	}
	stored := *run
	s.runs[run.ID] = &stored
	return nil
}

// GetByID returns a copy of the stored run.
func (s *MemoryRunStore) GetByID(_ context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}
	copied := *run
	return &copied, nil
}

// Update applies params to the stored run.
func (s *MemoryRunStore) Update(_ context.Context, id string, params repository.UpdateRunParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}
	params.Apply(run)
	return nil
}

// List returns up to limit runs, newest first.
func (s *MemoryRunStore) List(_ context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	runs := make([]models.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
