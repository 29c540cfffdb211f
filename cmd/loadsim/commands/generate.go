package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/course-registration-loadsim/internal/repository"
	"github.com/noah-isme/course-registration-loadsim/internal/service"
)

var generateFlags struct {
	courses  int
	students int
	capacity int
	seed     uint64
	out      string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generates a synthetic course catalog and student roster.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		out := generateFlags.out
		if out == "" {
			out = cfg.Simulation.DataFile
		}

		catalog := service.NewFixtureGenerator().Generate(service.FixtureParams{
			Courses:  generateFlags.courses,
			Students: generateFlags.students,
			Capacity: generateFlags.capacity,
			Seed:     generateFlags.seed,
		})
		if err := repository.NewCatalogRepository().Save(cmd.Context(), out, catalog); err != nil {
			return err
		}

		seats := 0
		for _, course := range catalog.Courses {
			seats += course.Capacity
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d courses (%d seats), %d students\n",
			out, len(catalog.Courses), seats, len(catalog.Students))
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.IntVar(&generateFlags.courses, "courses", 320, "Number of courses.")
	f.IntVar(&generateFlags.students, "students", 8200, "Number of students.")
	f.IntVar(&generateFlags.capacity, "capacity", 30, "Seats per course.")
	f.Uint64Var(&generateFlags.seed, "seed", 1, "Generator seed.")
	f.StringVar(&generateFlags.out, "out", "", "Output file (defaults to DATA_FILE).")
	rootCmd.AddCommand(generateCmd)
}
