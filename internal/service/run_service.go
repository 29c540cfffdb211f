package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-loadsim/internal/dto"
	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/internal/repository"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
	"github.com/noah-isme/course-registration-loadsim/pkg/events"
	"github.com/noah-isme/course-registration-loadsim/pkg/jobs"
	"github.com/noah-isme/course-registration-loadsim/pkg/middleware/requestid"
)

type catalogLoader interface {
	Load(ctx context.Context, path string) (*models.Catalog, error)
}

type runStore interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	Update(ctx context.Context, id string, params repository.UpdateRunParams) error
	List(ctx context.Context, limit int) ([]models.Run, error)
}

type attemptStore interface {
	InsertBatch(ctx context.Context, runID string, attempts []models.Attempt) error
}

type eventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type runObserver interface {
	sessionObserver
	ObserveRun(status models.RunStatus)
}

// RunServiceDeps wires the collaborators of a RunService. Attempts, Events,
// Redis, Exporter, Metrics, Resources and Queue are optional.
type RunServiceDeps struct {
	Catalog   catalogLoader
	Runs      runStore
	Attempts  attemptStore
	Events    eventPublisher
	Redis     redis.Cmdable
	Exporter  *ExportService
	Metrics   runObserver
	Resources *ResourceSampler
	Queue     jobDispatcher
	Logger    *zap.Logger
}

// ArtifactDownload aggregates resolved download data.
type ArtifactDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// RunService executes load runs and manages their records.
type RunService struct {
	cfg       *config.Config
	catalog   catalogLoader
	runs      runStore
	attempts  attemptStore
	events    eventPublisher
	redis     redis.Cmdable
	exporter  *ExportService
	metrics   runObserver
	resources *ResourceSampler
	queue     jobDispatcher
	logger    *zap.Logger
	validator *validator.Validate
	slo       *SLOEvaluator

	running atomic.Bool
}

// NewRunService constructs the run service.
func NewRunService(cfg *config.Config, deps RunServiceDeps) *RunService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runs := deps.Runs
	if runs == nil {
		runs = NewMemoryRunStore()
	}
	return &RunService{
		cfg:       cfg,
		catalog:   deps.Catalog,
		runs:      runs,
		attempts:  deps.Attempts,
		events:    deps.Events,
		redis:     deps.Redis,
		exporter:  deps.Exporter,
		metrics:   deps.Metrics,
		resources: deps.Resources,
		queue:     deps.Queue,
		logger:    logger,
		validator: validator.New(),
		slo:       NewSLOEvaluator(cfg.SLO),
	}
}

// Execute runs one load test synchronously under a fresh run id.
func (s *RunService) Execute(ctx context.Context, params models.RunParams) (*models.RunReport, error) {
	return s.execute(ctx, uuid.NewString(), params)
}

func (s *RunService) execute(ctx context.Context, runID string, params models.RunParams) (*models.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, appErrors.ErrRunInProgress
	}
	defer s.running.Store(false)

	sim, err := s.resolve(params)
	if err != nil {
		return nil, err
	}
	if sim.Seed == 0 {
		sim.Seed = uint64(time.Now().UnixNano())
	}
	params = recordParams(params, sim)

	catalog, err := s.catalog.Load(ctx, sim.DataFile)
	if err != nil {
		return nil, err
	}
	students := catalog.Students
	if sim.StudentLimit > 0 && sim.StudentLimit < len(students) {
		students = students[:sim.StudentLimit]
	}
	courses := AssignHotCourses(catalog.Courses, sim.HotFraction, NewRandom(sim.Seed, 0))

	factory, err := LedgerFactoryFor(sim.LedgerBackend, s.redis, s.cfg.Redis)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported ledger backend")
	}
	ledger, waitlist, err := factory.Build(ctx, runID, courses)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build seat ledger")
	}

	latency := NewSimulatedLatency(s.cfg.Latency, sim.CacheHitRate)
	sleeper := SleeperFor(params.Fast)
	engine := NewAdmissionEngine(ledger, waitlist, latency, sleeper, PolicyFromConfig(sim), s.logger)
	sessions := NewSessionOrchestrator(engine, latency, sleeper, sim.MinCoursesPerStudent, sim.MaxCoursesPerStudent)
	var observer sessionObserver
	if s.metrics != nil {
		observer = s.metrics
	}
	driver := NewLoadDriver(sessions, observer, DriverConfig{
		MaxConcurrency: sim.MaxConcurrency,
		Seed:           sim.Seed,
		ProgressEvery:  sim.ProgressEvery,
	}, s.logger)

	s.logger.Sugar().Infow("run starting",
		"run_id", runID,
		"students", len(students),
		"courses", len(courses),
		"concurrency", sim.MaxConcurrency,
		"ledger", factory.Backend(),
		"seed", sim.Seed,
		"fast", params.Fast,
	)

	runCtx := ctx
	if sim.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, sim.RunTimeout)
		defer cancel()
	}
	// Reporting must finish even when the run itself was cut short.
	finishCtx := context.WithoutCancel(ctx)

	before := s.snapshot(finishCtx)
	sampler := NewTimelineSampler(driver, sim.TimelineInterval)
	sampler.Start(runCtx)
	outcome := driver.Run(runCtx, students, courses)
	timeline := sampler.Stop()
	after := s.snapshot(finishCtx)

	metrics := Summarize(SummaryInput{
		Attempts:      outcome.Attempts,
		Courses:       courses,
		Duration:      outcome.Duration,
		MinCourses:    sim.MinCoursesPerStudent,
		PeakInFlight:  outcome.PeakInFlight,
		SessionFaults: len(outcome.Faults),
	})
	report := &models.RunReport{
		RunID:           runID,
		Params:          params,
		StartedAt:       outcome.StartedAt,
		FinishedAt:      outcome.StartedAt.Add(outcome.Duration),
		Cancelled:       outcome.Cancelled,
		HotCourses:      countHot(courses),
		Metrics:         metrics,
		SLO:             s.slo.Evaluate(metrics),
		Faults:          outcome.Faults,
		Timeline:        timeline,
		ResourcesBefore: before,
		ResourcesAfter:  after,
		Attempts:        outcome.Attempts,
	}
	if outcome.Cancelled {
		report.Warnings = append(report.Warnings, fmt.Sprintf("run cancelled: %d of %d students completed", outcome.StudentsCompleted, len(students)))
	}
	for _, fault := range outcome.Faults {
		s.logger.Sugar().Warnw("session fault", "run_id", runID, "student_id", fault.StudentID, "error", fault.Error)
	}

	if s.exporter != nil {
		artifacts, warnings := s.exporter.Export(report)
		report.Artifacts = artifacts
		report.Warnings = append(report.Warnings, warnings...)
	}
	s.persistAttempts(finishCtx, report)
	s.publish(finishCtx, report)

	s.logger.Sugar().Infow("run finished",
		"run_id", runID,
		"attempts", metrics.TotalAttempts,
		"enrolled", metrics.Count(models.DecisionEnrolled),
		"duration_s", metrics.DurationSeconds,
		"grade", report.SLO.Grade,
		"cancelled", report.Cancelled,
	)
	return report, nil
}

// resolve overlays request parameters on the configured simulation.
func (s *RunService) resolve(params models.RunParams) (config.SimulationConfig, error) {
	sim := s.cfg.Simulation
	if params.DataFile != "" {
		sim.DataFile = params.DataFile
	}
	if params.StudentLimit > 0 {
		sim.StudentLimit = params.StudentLimit
	}
	if params.MaxConcurrency > 0 {
		sim.MaxConcurrency = params.MaxConcurrency
	}
	if params.MinCourses > 0 {
		sim.MinCoursesPerStudent = params.MinCourses
	}
	if params.MaxCourses > 0 {
		sim.MaxCoursesPerStudent = params.MaxCourses
	}
	if params.Seed != 0 {
		sim.Seed = params.Seed
	}
	if params.LedgerBackend != "" {
		sim.LedgerBackend = strings.ToLower(params.LedgerBackend)
	}
	if params.Timeout != "" {
		d, err := time.ParseDuration(params.Timeout)
		if err != nil || d < 0 {
			return sim, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid timeout %q", params.Timeout))
		}
		sim.RunTimeout = d
	}
	if err := sim.Validate(); err != nil {
		return sim, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run parameters")
	}
	return sim, nil
}

func recordParams(params models.RunParams, sim config.SimulationConfig) models.RunParams {
	params.DataFile = sim.DataFile
	params.StudentLimit = sim.StudentLimit
	params.MaxConcurrency = sim.MaxConcurrency
	params.MinCourses = sim.MinCoursesPerStudent
	params.MaxCourses = sim.MaxCoursesPerStudent
	params.Seed = sim.Seed
	params.LedgerBackend = sim.LedgerBackend
	if sim.RunTimeout > 0 {
		params.Timeout = sim.RunTimeout.String()
	}
	return params
}

func (s *RunService) snapshot(ctx context.Context) models.ResourceSnapshot {
	if s.resources == nil {
		return models.ResourceSnapshot{}
	}
	return s.resources.Snapshot(ctx)
}

func (s *RunService) persistAttempts(ctx context.Context, report *models.RunReport) {
	if s.attempts == nil || len(report.Attempts) == 0 {
		return
	}
	if err := s.attempts.InsertBatch(ctx, report.RunID, report.Attempts); err != nil {
		s.logger.Sugar().Warnw("attempt persistence failed", "run_id", report.RunID, "error", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("persistence: %v", err))
	}
}

func (s *RunService) publish(ctx context.Context, report *models.RunReport) {
	if s.events == nil {
		return
	}
	completed := models.RunCompletedEvent{
		RunID:           report.RunID,
		Status:          models.RunStatusFinished,
		Cancelled:       report.Cancelled,
		TotalAttempts:   report.Metrics.TotalAttempts,
		Enrolled:        report.Metrics.Count(models.DecisionEnrolled),
		DurationSeconds: report.Metrics.DurationSeconds,
		Grade:           report.SLO.Grade,
		PassRate:        report.SLO.PassRate,
		FinishedAt:      report.FinishedAt,
	}
	if err := s.events.Publish(ctx, events.TypeRunCompleted, completed); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("events: %v", err))
		return
	}
	if !s.cfg.Events.PublishEnrollments {
		return
	}

	failed := 0
	var lastErr error
	for _, a := range report.Attempts {
		if a.Decision != models.DecisionEnrolled {
			continue
		}
		err := s.events.Publish(ctx, events.TypeRegistrationEnrolled, models.RegistrationEnrolledEvent{
			RunID:          report.RunID,
			RegistrationID: a.ID,
			StudentID:      a.StudentID,
			CourseID:       a.CourseID,
			CourseCode:     a.CourseCode,
			EnrolledAt:     a.StartedAt.Add(a.Total),
		})
		if err != nil {
			failed++
			lastErr = err
		}
	}
	if failed > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("events: %d enrollment events failed, last: %v", failed, lastErr))
	}
}

// Submit validates the request, records a queued run and enqueues it.
func (s *RunService) Submit(ctx context.Context, req dto.CreateRunRequest) (*dto.RunAccepted, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run request")
	}
	params := req.Params()
	if _, err := s.resolve(params); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "run queue not configured")
	}

	run := &models.Run{Status: models.RunStatusQueued, Params: params}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create run")
	}
	// The payload carries the submitting request's ID so worker logs correlate.
	job := jobs.Job{ID: run.ID, Type: jobs.JobTypeLoadRun, Payload: requestid.FromContext(ctx)}
	if err := s.queue.Enqueue(job); err != nil {
		status := models.RunStatusFailed
		msg := "failed to enqueue run"
		now := time.Now().UTC()
		_ = s.runs.Update(ctx, run.ID, repository.UpdateRunParams{
			Status:       &status,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		if errors.Is(err, jobs.ErrFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrTransientService.Code, appErrors.ErrTransientService.Status, "run queue is full")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue run")
	}
	return &dto.RunAccepted{ID: run.ID, Status: run.Status}, nil
}

// Get returns a run record.
func (s *RunService) Get(ctx context.Context, id string) (*models.Run, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run")
	}
	return run, nil
}

// List returns the most recent runs.
func (s *RunService) List(ctx context.Context, limit int) ([]models.Run, error) {
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list runs")
	}
	return runs, nil
}

// ArtifactLinks signs download links for a finished run.
func (s *RunService) ArtifactLinks(ctx context.Context, id string) ([]ArtifactLink, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "run has not finished")
	}
	if s.exporter == nil || len(run.Artifacts) == 0 {
		return []ArtifactLink{}, nil
	}
	links, err := s.exporter.SignedLinks(run.ID, run.Artifacts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign artifact links")
	}
	return links, nil
}

// ResolveDownload validates token and opens the stored artifact.
func (s *RunService) ResolveDownload(ctx context.Context, token string) (*ArtifactDownload, error) {
	if s.exporter == nil {
		return nil, appErrors.ErrNotFound
	}
	runID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !hasArtifact(run.Artifacts, relPath) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match a run artifact")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "artifact expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open artifact")
	}
	return &ArtifactDownload{File: file, Filename: filepath.Base(relPath), ExpiresAt: expiresAt}, nil
}

// StartCleanup boots a goroutine that purges artifacts past their retention.
func (s *RunService) StartCleanup(ctx context.Context) {
	retention := s.cfg.Artifacts.Retention
	interval := s.cfg.Artifacts.CleanupInterval
	if s.exporter == nil || retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.exporter.Cleanup(retention)
				if err != nil {
					s.logger.Sugar().Warnw("artifact cleanup failed", "error", err)
					continue
				}
				if len(deleted) > 0 {
					s.logger.Sugar().Infow("artifacts purged", "count", len(deleted))
				}
			}
		}
	}()
}

func (s *RunService) observeRun(status models.RunStatus) {
	if s.metrics != nil {
		s.metrics.ObserveRun(status)
	}
}

func hasArtifact(artifacts models.ArtifactSet, relPath string) bool {
	for _, rel := range artifacts {
		if rel == relPath {
			return true
		}
	}
	return false
}

func countHot(courses []models.Course) int {
	n := 0
	for _, c := range courses {
		if c.Hot {
			n++
		}
	}
	return n
}

// RunWorker bridges queue jobs to RunService.
type RunWorker struct {
	service *RunService
	logger  *zap.Logger
}

// NewRunWorker constructs a worker.
func NewRunWorker(service *RunService, logger *zap.Logger) *RunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunWorker{service: service, logger: logger}
}

// Handle processes a queued run.
func (w *RunWorker) Handle(ctx context.Context, job jobs.Job) error {
	reqID, _ := job.Payload.(string)
	w.logger.Sugar().Infow("run dequeued", "run_id", job.ID, "request_id", reqID, "waited", time.Since(job.Enqueued))

	record, err := w.service.runs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	_, err = w.service.runRecorded(ctx, record)
	return err
}

// ExecuteRecorded stores a run record first and then executes it, so the
// run row exists before any attempt rows reference it.
func (s *RunService) ExecuteRecorded(ctx context.Context, params models.RunParams) (*models.RunReport, error) {
	record := &models.Run{Status: models.RunStatusQueued, Params: params}
	if err := s.runs.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create run")
	}
	return s.runRecorded(ctx, record)
}

func (s *RunService) runRecorded(ctx context.Context, record *models.Run) (*models.RunReport, error) {
	running := models.RunStatusRunning
	started := time.Now().UTC()
	if err := s.runs.Update(ctx, record.ID, repository.UpdateRunParams{
		Status:    &running,
		StartedAt: &started,
	}); err != nil {
		return nil, err
	}

	report, err := s.execute(ctx, record.ID, record.Params)
	now := time.Now().UTC()
	if err != nil {
		failed := models.RunStatusFailed
		msg := err.Error()
		if updateErr := s.runs.Update(context.WithoutCancel(ctx), record.ID, repository.UpdateRunParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); updateErr != nil {
			s.logger.Sugar().Warnw("failed to mark run failed", "run_id", record.ID, "error", updateErr)
		}
		s.observeRun(failed)
		return nil, err
	}

	finished := models.RunStatusFinished
	params := repository.UpdateRunParams{
		Status:     &finished,
		Params:     &report.Params,
		Metrics:    &report.Metrics,
		SLO:        &report.SLO,
		Artifacts:  report.Artifacts,
		FinishedAt: &now,
	}
	if len(report.Warnings) > 0 {
		msg := strings.Join(report.Warnings, "; ")
		params.ErrorMessage = &msg
	}
	if err := s.runs.Update(context.WithoutCancel(ctx), record.ID, params); err != nil {
		s.logger.Sugar().Warnw("failed to mark run finished", "run_id", record.ID, "error", err)
		return report, err
	}
	s.observeRun(finished)
	return report, nil
}
