package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCatalogRepositoryLoad(t *testing.T) {
	path := writeCatalog(t, `{
  "courses": [
    {"course_id": "c1", "course_code": "CS101", "total_slots": 25, "schedule": {"days": "MWF", "time": "08:00-09:30"}, "popularity_score": 0.8, "is_hot": true},
    {"course_id": "c2", "schedule": {"days": "TTH", "time": "09:45-11:15"}}
  ],
  "students": [{"student_id": "STU000001", "first_name": "Ada"}],
  "metadata": {"generated_at": "2024-01-01T00:00:00Z"}
}`)

	catalog, err := NewCatalogRepository().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, catalog.Courses, 2)

	assert.Equal(t, 25, catalog.Courses[0].Capacity)
	assert.False(t, catalog.Courses[0].Hot)
	require.NotNil(t, catalog.Courses[0].PopularityScore)
	assert.InDelta(t, 0.8, *catalog.Courses[0].PopularityScore, 1e-9)

	assert.Equal(t, DefaultCourseCapacity, catalog.Courses[1].Capacity)
	assert.Equal(t, "c2", catalog.Courses[1].Code)
	assert.Equal(t, 2, catalog.Metadata.TotalCourses)
	assert.Equal(t, 1, catalog.Metadata.TotalStudents)
}

func TestCatalogRepositoryLoadFailures(t *testing.T) {
	cases := map[string]string{
		"malformed":         `{"courses": [`,
		"no courses":        `{"courses": [], "students": [{"student_id": "s1"}]}`,
		"no students":       `{"courses": [{"course_id": "c1"}], "students": []}`,
		"duplicate id":      `{"courses": [{"course_id": "c1"}, {"course_id": "c1"}], "students": [{"student_id": "s1"}]}`,
		"duplicate student": `{"courses": [{"course_id": "c1"}], "students": [{"student_id": "s1"}, {"student_id": "s1"}]}`,
		"blank course":      `{"courses": [{"course_code": "CS1"}], "students": [{"student_id": "s1"}]}`,
		"blank student":     `{"courses": [{"course_id": "c1"}], "students": [{"first_name": "x"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCatalogRepository().Load(context.Background(), writeCatalog(t, body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrCatalogLoad))
		})
	}

	_, err := NewCatalogRepository().Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, appErrors.ErrCatalogLoad))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCatalogRepositorySaveThenLoad(t *testing.T) {
	repo := NewCatalogRepository()
	path := filepath.Join(t.TempDir(), "nested", "catalog.json")
	catalog := &models.Catalog{
		Courses:  []models.Course{{ID: "c1", Code: "CS101", Capacity: 30, Schedule: models.Schedule{Days: "MW", Time: "08:00-09:30"}}},
		Students: []models.Student{{ID: "STU000001"}},
	}

	require.NoError(t, repo.Save(context.Background(), path, catalog))
	loaded, err := repo.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, catalog.Courses[0].Schedule, loaded.Courses[0].Schedule)
}
