package service

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
	"github.com/noah-isme/course-registration-loadsim/pkg/export"
	"github.com/noah-isme/course-registration-loadsim/pkg/storage"
)

type failingPDF struct{}

func (failingPDF) Render(string, ...export.Dataset) ([]byte, error) {
	return nil, errors.New("font missing")
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, ExportConfig{APIPrefix: "/api/v1/"}, zap.NewNop(), nil, nil, nil)
	return svc, store
}

func sampleReport() *models.RunReport {
	started := time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC)
	attempts := []models.Attempt{
		{ID: "a1", StudentID: "STU000001", CourseID: "c1", CourseCode: "CS101", Decision: models.DecisionEnrolled, StartedAt: started, Total: 40 * time.Millisecond},
		{ID: "a2", StudentID: "STU000002", CourseID: "c1", CourseCode: "CS101", Decision: models.DecisionWaitlisted, StartedAt: started, Total: 30 * time.Millisecond, WaitlistPosition: 1},
		{ID: "a3", StudentID: "STU000003", CourseID: "c1", CourseCode: "CS101", Decision: models.DecisionError5xx, StartedAt: started, Total: 10 * time.Millisecond},
	}
	courses := []models.Course{{ID: "c1", Code: "CS101", Capacity: 1}}
	metrics := Summarize(SummaryInput{Attempts: attempts, Courses: courses, Duration: time.Second, MinCourses: 1, PeakInFlight: 3})
	report := &models.RunReport{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		HotCourses: 1,
		Metrics:    metrics,
		Timeline:   []models.TimelineSample{{ElapsedSeconds: 1, InFlight: 0, AttemptsCompleted: 3, StudentsCompleted: 3}},
		Attempts:   attempts,
	}
	report.SLO = NewSLOEvaluator(defaultSLOTargets()).Evaluate(metrics)
	report.SLO.TopCourses = TopCourses(metrics.Courses, 10)
	return report
}

func TestExportServiceWritesAllArtifacts(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	report := sampleReport()

	artifacts, warnings := svc.Export(report)
	require.Empty(t, warnings)
	for _, name := range []string{
		ArtifactRegistrationsJSON, ArtifactRegistrationsCSV, ArtifactMetrics,
		ArtifactSLO, ArtifactTimeline, ArtifactReportText, ArtifactReportPDF,
	} {
		require.Contains(t, artifacts, name)
		assert.Equal(t, "run-1/"+name, artifacts[name])
	}

	file, err := store.Open(artifacts[ArtifactRegistrationsCSV])
	require.NoError(t, err)
	body, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[0], "error_code"))
	assert.True(t, strings.HasSuffix(lines[3], "TRANSIENT_SERVICE_ERROR"))
	assert.Contains(t, lines[2], ",1,")

	pdf, err := store.Open(artifacts[ArtifactReportPDF])
	require.NoError(t, err)
	head := make([]byte, 4)
	_, err = io.ReadFull(pdf, head)
	require.NoError(t, pdf.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestExportServiceRecordsWarnings(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewExportService(store, storage.NewSignedURLSigner("secret", time.Hour), ExportConfig{}, nil, nil, failingPDF{}, nil)

	artifacts, warnings := svc.Export(sampleReport())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], ArtifactReportPDF)
	assert.NotContains(t, artifacts, ArtifactReportPDF)
	assert.Len(t, artifacts, 6)
}

func TestExportServiceSignedLinksResolve(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	artifacts, _ := svc.Export(sampleReport())

	links, err := svc.SignedLinks("run-1", artifacts)
	require.NoError(t, err)
	require.Len(t, links, len(artifacts))
	assert.Equal(t, ArtifactMetrics, links[0].Name)
	assert.True(t, strings.HasPrefix(links[0].URL, "/api/v1/artifacts/"))

	token := strings.TrimPrefix(links[0].URL, "/api/v1/artifacts/")
	runID, relPath, _, err := svc.ParseToken(token, false)
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, "run-1/metrics.json", relPath)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestExportServiceRenderText(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	report := sampleReport()
	report.Warnings = []string{"event publish failed"}

	out, err := svc.RenderText(report)
	require.NoError(t, err)
	lower := strings.ToLower(out)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, lower, "outcomes")
	assert.Contains(t, lower, "p99 response time")
	assert.Contains(t, lower, "event publish failed")
	assert.Contains(t, out, "CS101")
}

func TestAttemptsDatasetErrorCodeColumn(t *testing.T) {
	ds := AttemptsDataset([]models.Attempt{
		{ID: "a1", StudentID: "s1", CourseID: "c1", Decision: models.DecisionEnrolled},
		{ID: "a2", StudentID: "s1", CourseID: "c2", Decision: models.DecisionFailed},
		{ID: "a3", StudentID: "s2", CourseID: "c1", Decision: models.DecisionError5xx},
	})

	require.Len(t, ds.Rows, 3)
	last := len(ds.Headers) - 1
	require.Equal(t, "error_code", ds.Headers[last])
	assert.Equal(t, "", ds.Rows[0][last])
	assert.Equal(t, appErrors.ErrCapacityExhausted.Code, ds.Rows[1][last])
	assert.Equal(t, appErrors.ErrTransientService.Code, ds.Rows[2][last])
}
