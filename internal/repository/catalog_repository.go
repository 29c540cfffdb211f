package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

// DefaultCourseCapacity applies to catalog entries without total_slots.
const DefaultCourseCapacity = 30

// CatalogRepository reads and writes catalog JSON files.
type CatalogRepository struct{}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{}
}

// Load parses and validates a catalog file. Every failure is reported as
// ErrCatalogLoad.
func (r *CatalogRepository) Load(_ context.Context, path string) (*models.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrCatalogLoad, fmt.Errorf("read catalog %s: %w", path, err), "")
	}

	var catalog models.Catalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrCatalogLoad, fmt.Errorf("decode catalog %s: %w", path, err), "")
	}
	if err := normalizeCatalog(&catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Save writes the catalog as indented JSON, creating parent directories.
func (r *CatalogRepository) Save(_ context.Context, path string, catalog *models.Catalog) error {
	payload, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create catalog directory: %w", err)
		}
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}

func normalizeCatalog(catalog *models.Catalog) error {
	if len(catalog.Courses) == 0 {
		return appErrors.Clone(appErrors.ErrCatalogLoad, "catalog contains no courses")
	}
	if len(catalog.Students) == 0 {
		return appErrors.Clone(appErrors.ErrCatalogLoad, "catalog contains no students")
	}

	seen := make(map[string]struct{}, len(catalog.Courses))
	for i := range catalog.Courses {
		course := &catalog.Courses[i]
		if course.ID == "" {
			return appErrors.Clone(appErrors.ErrCatalogLoad, fmt.Sprintf("course at index %d has no course_id", i))
		}
		if _, dup := seen[course.ID]; dup {
			return appErrors.Clone(appErrors.ErrCatalogLoad, fmt.Sprintf("duplicate course_id %s", course.ID))
		}
		seen[course.ID] = struct{}{}
		if course.Capacity <= 0 {
			course.Capacity = DefaultCourseCapacity
		}
		if course.Code == "" {
			course.Code = course.ID
		}
		// Hot is derived per run, never read from the file.
		course.Hot = false
	}

	students := make(map[string]struct{}, len(catalog.Students))
	for i, student := range catalog.Students {
		if student.ID == "" {
			return appErrors.Clone(appErrors.ErrCatalogLoad, fmt.Sprintf("student at index %d has no student_id", i))
		}
		if _, dup := students[student.ID]; dup {
			return appErrors.Clone(appErrors.ErrCatalogLoad, fmt.Sprintf("duplicate student_id %s", student.ID))
		}
		students[student.ID] = struct{}{}
	}

	catalog.Metadata.TotalCourses = len(catalog.Courses)
	catalog.Metadata.TotalStudents = len(catalog.Students)
	return nil
}
