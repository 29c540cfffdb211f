package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/internal/repository"
	"github.com/noah-isme/course-registration-loadsim/internal/service"
	"github.com/noah-isme/course-registration-loadsim/pkg/cache"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
	"github.com/noah-isme/course-registration-loadsim/pkg/database"
	"github.com/noah-isme/course-registration-loadsim/pkg/events"
	"github.com/noah-isme/course-registration-loadsim/pkg/storage"
)

var runFlags struct {
	data        string
	students    int
	concurrency int
	minCourses  int
	maxCourses  int
	seed        uint64
	timeout     time.Duration
	output      string
	ledger      string
	persist     bool
	publish     bool
	fast        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one registration load test and writes its report.",
	RunE:  runLoadTest,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.data, "data", "", "Catalog JSON file (DATA_FILE).")
	f.IntVar(&runFlags.students, "students", 0, "Limit the run to the first N students.")
	f.IntVar(&runFlags.concurrency, "concurrency", 0, "Maximum concurrent sessions (MAX_CONCURRENCY).")
	f.IntVar(&runFlags.minCourses, "min-courses", 0, "Minimum courses per student.")
	f.IntVar(&runFlags.maxCourses, "max-courses", 0, "Maximum courses per student.")
	f.Uint64Var(&runFlags.seed, "seed", 0, "Random seed; 0 picks one from the clock.")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "Cancel the run after this long; 0 waits for every session.")
	f.StringVar(&runFlags.output, "output", "", "Artifact directory (OUTPUT_DIR).")
	f.StringVar(&runFlags.ledger, "ledger", "", "Seat ledger backend: memory or redis.")
	f.BoolVar(&runFlags.persist, "persist", false, "Export the run and its attempts to Postgres.")
	f.BoolVar(&runFlags.publish, "publish", false, "Publish run events to AMQP.")
	f.BoolVar(&runFlags.fast, "fast", false, "Skip simulated latency sleeps.")
	rootCmd.AddCommand(runCmd)
}

func runLoadTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runFlags.output != "" {
		cfg.Artifacts.OutputDir = runFlags.output
	}
	if cmd.Flags().Changed("persist") {
		cfg.Persistence.Enabled = runFlags.persist
	}
	if cmd.Flags().Changed("publish") {
		cfg.Events.Enabled = runFlags.publish
	}

	logr, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildRunDeps(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewRunService(cfg, deps)
	params := models.RunParams{
		DataFile:       runFlags.data,
		StudentLimit:   runFlags.students,
		MaxConcurrency: runFlags.concurrency,
		MinCourses:     runFlags.minCourses,
		MaxCourses:     runFlags.maxCourses,
		Seed:           runFlags.seed,
		LedgerBackend:  runFlags.ledger,
		Fast:           runFlags.fast,
	}
	if runFlags.timeout > 0 {
		params.Timeout = runFlags.timeout.String()
	}

	report, err := svc.ExecuteRecorded(ctx, params)
	if err != nil && report == nil {
		return err
	}

	text, renderErr := deps.Exporter.RenderText(report)
	if renderErr != nil {
		return fmt.Errorf("render report: %w", renderErr)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, text)

	names := make([]string, 0, len(report.Artifacts))
	for name := range report.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-20s %s\n", name, deps.Exporter.Path(report.Artifacts[name]))
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintf(out, "warnings: %s\n", strings.Join(report.Warnings, "; "))
	}
	return err
}

// buildRunDeps connects the optional backends the config asks for. The
// returned cleanup closes whatever was opened.
func buildRunDeps(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.RunServiceDeps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (service.RunServiceDeps, func(), error) {
		cleanup()
		return service.RunServiceDeps{}, func() {}, err
	}

	store, err := storage.NewLocalStorage(cfg.Artifacts.OutputDir)
	if err != nil {
		return fail(fmt.Errorf("open artifact dir: %w", err))
	}
	signer := storage.NewSignedURLSigner(cfg.Artifacts.SignedURLSecret, cfg.Artifacts.SignedURLTTL)
	deps := service.RunServiceDeps{
		Catalog:   repository.NewCatalogRepository(),
		Exporter:  service.NewExportService(store, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil, nil),
		Resources: service.NewResourceSampler(logr),
		Logger:    logr,
	}

	backend := runFlags.ledger
	if backend == "" {
		backend = cfg.Simulation.LedgerBackend
	}
	if strings.EqualFold(backend, config.LedgerRedis) {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		deps.Redis = client
	}

	if cfg.Persistence.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := database.EnsureSchema(ctx, db); err != nil {
			return fail(err)
		}
		deps.Runs = repository.NewRunRepository(db)
		deps.Attempts = repository.NewAttemptRepository(db, cfg.Persistence.BatchSize)
	}

	if cfg.Events.Enabled {
		pub, err := events.Dial(cfg.Events.URL, cfg.Events.Queue, logr)
		if err != nil {
			return fail(fmt.Errorf("connect amqp: %w", err))
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Events = pub
	}
	return deps, cleanup, nil
}
