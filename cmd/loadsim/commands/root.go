package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/course-registration-loadsim/pkg/config"
	"github.com/noah-isme/course-registration-loadsim/pkg/logger"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "loadsim",
	Short:         "loadsim simulates peak-hour course registration traffic and grades it against SLOs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Env-style config file (defaults to ./.env).")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level.")
}

// ExecuteContext runs the root command and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	return config.LoadFrom(configPath)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if verbose {
		return logger.New(cfg, logger.WithLevel(zapcore.DebugLevel), logger.WithoutSampling())
	}
	return logger.New(cfg)
}
