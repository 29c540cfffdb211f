package service

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/pkg/export"
	"github.com/noah-isme/course-registration-loadsim/pkg/storage"
)

// Artifact file names written for every run.
const (
	ArtifactRegistrationsJSON = "registrations.json"
	ArtifactRegistrationsCSV  = "registrations.csv"
	ArtifactMetrics           = "metrics.json"
	ArtifactSLO               = "slo_metrics.json"
	ArtifactTimeline          = "timeline.json"
	ArtifactReportText        = "report.txt"
	ArtifactReportPDF         = "report.pdf"
)

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
	Path(relPath string) string
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(title string, sections ...export.Dataset) ([]byte, error)
}

type textRenderer interface {
	Render(title string, sections ...export.Dataset) (string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ArtifactLink is a signed download link for one run artifact.
type ArtifactLink struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders run reports and persists them as artifacts.
type ExportService struct {
	storage fileStorage
	signer  *storage.SignedURLSigner
	csv     csvRenderer
	pdf     pdfRenderer
	text    textRenderer
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the pkg/export implementations.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, text textRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if text == nil {
		text = export.NewTextExporter()
	}
	return &ExportService{
		storage: store,
		signer:  signer,
		csv:     csv,
		pdf:     pdf,
		text:    text,
		logger:  logger,
		cfg:     cfg,
	}
}

// Export writes every artifact for the report. A failing artifact is logged
// and reported as a warning; the remaining artifacts are still written.
func (s *ExportService) Export(report *models.RunReport) (models.ArtifactSet, []string) {
	artifacts := models.ArtifactSet{}
	var warnings []string

	write := func(name string, render func() ([]byte, error)) {
		data, err := render()
		if err == nil {
			var rel string
			rel, err = s.storage.Save(storage.RunFile(report.RunID, name), data)
			if err == nil {
				artifacts[name] = rel
				return
			}
		}
		s.logger.Sugar().Warnw("artifact export failed", "run_id", report.RunID, "artifact", name, "error", err)
		warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
	}

	write(ArtifactRegistrationsJSON, func() ([]byte, error) {
		attempts := report.Attempts
		if attempts == nil {
			attempts = []models.Attempt{}
		}
		return json.MarshalIndent(attempts, "", "  ")
	})
	write(ArtifactRegistrationsCSV, func() ([]byte, error) {
		return s.csv.Render(AttemptsDataset(report.Attempts))
	})
	write(ArtifactMetrics, func() ([]byte, error) {
		return json.MarshalIndent(report.Metrics, "", "  ")
	})
	write(ArtifactSLO, func() ([]byte, error) {
		return json.MarshalIndent(report.SLO, "", "  ")
	})
	write(ArtifactTimeline, func() ([]byte, error) {
		timeline := report.Timeline
		if timeline == nil {
			timeline = []models.TimelineSample{}
		}
		return json.MarshalIndent(timeline, "", "  ")
	})
	write(ArtifactReportText, func() ([]byte, error) {
		out, err := s.RenderText(report)
		return []byte(out), err
	})
	write(ArtifactReportPDF, func() ([]byte, error) {
		return s.pdf.Render(reportTitle(report), reportSections(report)...)
	})

	return artifacts, warnings
}

// RenderText renders the human-readable run report.
func (s *ExportService) RenderText(report *models.RunReport) (string, error) {
	return s.text.Render(reportTitle(report), reportSections(report)...)
}

// SignedLinks returns a download link per artifact, ordered by name.
func (s *ExportService) SignedLinks(runID string, artifacts models.ArtifactSet) ([]ArtifactLink, error) {
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	links := make([]ArtifactLink, 0, len(names))
	for _, name := range names {
		token, expiresAt, err := s.signer.Generate(runID, artifacts[name])
		if err != nil {
			return nil, err
		}
		links = append(links, ArtifactLink{
			Name:      name,
			URL:       fmt.Sprintf("%s/artifacts/%s", prefix, token),
			ExpiresAt: expiresAt,
		})
	}
	return links, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (runID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to a stored artifact.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Path returns the on-disk location of a stored artifact.
func (s *ExportService) Path(relPath string) string {
	return s.storage.Path(relPath)
}

// Cleanup removes artifacts older than ttl.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	return s.storage.CleanupOlderThan(ttl)
}

// AttemptsDataset flattens attempts into the registrations table.
func AttemptsDataset(attempts []models.Attempt) export.Dataset {
	ds := export.NewDataset("Registrations",
		"registration_id", "student_id", "course_id", "course_code", "registration_timestamp", "status",
		"response_time_ms", "cache_hit", "cache_latency_ms", "atomic_op_latency_ms", "retry_backoff_ms",
		"db_txn_latency_ms", "retry_count", "retry_resolved", "is_hot_section", "waitlist_position", "error_code",
	)
	for _, a := range attempts {
		code := ""
		if appErr := OutcomeError(a.Decision); appErr != nil {
			code = appErr.Code
		}
		position := ""
		if a.WaitlistPosition > 0 {
			position = strconv.Itoa(a.WaitlistPosition)
		}
		ds.Append(
			a.ID, a.StudentID, a.CourseID, a.CourseCode, a.StartedAt.UTC().Format(time.RFC3339Nano), string(a.Decision),
			fmtMillis(a.Total), strconv.FormatBool(a.CacheHit), fmtMillis(a.Phases.CacheLookup), fmtMillis(a.Phases.Reservation), fmtMillis(a.Phases.RetryBackoff),
			fmtMillis(a.Phases.Persistence), strconv.Itoa(a.RetryCount), strconv.FormatBool(a.RetryResolved), strconv.FormatBool(a.Hot), position, code,
		)
	}
	return *ds
}

func reportTitle(report *models.RunReport) string {
	return fmt.Sprintf("Course Registration Load Test %s", report.RunID)
}

func reportSections(report *models.RunReport) []export.Dataset {
	m := report.Metrics

	summary := export.NewDataset("Run Summary", "Metric", "Value")
	summary.Append("Started", report.StartedAt.UTC().Format(time.RFC3339))
	summary.Append("Duration (s)", fmt.Sprintf("%.2f", m.DurationSeconds))
	summary.Append("Cancelled", strconv.FormatBool(report.Cancelled))
	summary.Append("Students processed", strconv.Itoa(m.StudentsProcessed))
	summary.Append("Hot courses", strconv.Itoa(report.HotCourses))
	summary.Append("Total attempts", strconv.Itoa(m.TotalAttempts))
	summary.Append("Attempts/sec", fmt.Sprintf("%.2f", m.Throughput.AttemptsPerSec))
	summary.Append("Enrolled/sec", fmt.Sprintf("%.2f", m.Throughput.EnrolledPerSec))
	summary.Append("Peak concurrent sessions", strconv.Itoa(m.Throughput.PeakInFlight))
	summary.Append("Students with min courses", fmt.Sprintf("%d / %d (min %d)", m.StudentsWithMinCourses, m.StudentsProcessed, m.MinCoursesTarget))
	summary.Append("Avg enrolled per student", fmt.Sprintf("%.2f", m.AvgEnrolledPerStudent))
	summary.Append("Session faults", strconv.Itoa(m.SessionFaults))

	outcomes := export.NewDataset("Outcomes", "Decision", "Count", "Rate %")
	for _, d := range models.Decisions {
		outcomes.Append(string(d), strconv.Itoa(m.Count(d)), fmt.Sprintf("%.2f", m.Rate(d)))
	}

	latency := export.NewDataset("Latency (ms)", "Phase", "Mean", "P50", "P95", "P99")
	for _, row := range []struct {
		name string
		s    models.LatencySummary
	}{
		{"response", m.Latency},
		{"cache", m.CacheLatency},
		{"reservation", m.ReservationLatency},
		{"persistence", m.PersistenceLatency},
	} {
		latency.Append(row.name, f2(row.s.MeanMs), f2(row.s.P50Ms), f2(row.s.P95Ms), f2(row.s.P99Ms))
	}

	slo := export.NewDataset(fmt.Sprintf("SLO %d/%d %s", report.SLO.Passed, report.SLO.Total, report.SLO.Grade),
		"Category", "Check", "Target", "Actual", "Result")
	for _, check := range report.SLO.Checks {
		result := "FAIL"
		if check.Passed {
			result = "PASS"
		}
		slo.Append(check.Category, check.Name, check.Target, fmt.Sprintf("%.2f %s", check.Actual, check.Unit), result)
	}

	top := export.NewDataset("Top Courses", "Course", "Hot", "Enrolled", "Capacity", "Waitlisted", "Utilization %")
	for _, c := range report.SLO.TopCourses {
		top.Append(c.CourseCode, strconv.FormatBool(c.Hot), strconv.Itoa(c.Enrolled), strconv.Itoa(c.Capacity), strconv.Itoa(c.Waitlisted), f2(c.UtilizationPercent))
	}

	sections := []export.Dataset{*summary, *outcomes, *latency, *slo, *top}
	if len(report.Warnings) > 0 {
		warn := export.NewDataset("Warnings", "Warning")
		for _, w := range report.Warnings {
			warn.Append(w)
		}
		sections = append(sections, *warn)
	}
	return sections
}

func fmtMillis(d time.Duration) string {
	return f2(models.Millis(d))
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
