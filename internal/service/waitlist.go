package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

type courseQueue struct {
	mu      sync.Mutex
	entries []string
}

// MemoryWaitlist holds an ordered queue per course.
type MemoryWaitlist struct {
	queues map[string]*courseQueue
}

// NewMemoryWaitlist creates an empty queue for every course.
func NewMemoryWaitlist(courses []models.Course) *MemoryWaitlist {
	queues := make(map[string]*courseQueue, len(courses))
	for _, course := range courses {
		queues[course.ID] = &courseQueue{}
	}
	return &MemoryWaitlist{queues: queues}
}

// Append adds the student and returns their 1-based position.
func (w *MemoryWaitlist) Append(_ context.Context, courseID, studentID string) (int, error) {
	queue, ok := w.queues[courseID]
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s has no waitlist", courseID))
	}
	queue.mu.Lock()
	defer queue.mu.Unlock()
	queue.entries = append(queue.entries, studentID)
	return len(queue.entries), nil
}

// Entries returns a copy of the queue for a course.
func (w *MemoryWaitlist) Entries(courseID string) []string {
	queue, ok := w.queues[courseID]
	if !ok {
		return nil
	}
	queue.mu.Lock()
	defer queue.mu.Unlock()
	out := make([]string, len(queue.entries))
	copy(out, queue.entries)
	return out
}
