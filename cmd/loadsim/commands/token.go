package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/internal/service"
)

var tokenFlags struct {
	subject string
	role    string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mints a bearer token for the control-plane API.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		token, expiresAt, err := service.NewTokenService(cfg.JWT).Issue(tokenFlags.subject, tokenFlags.role)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "role %s, expires %s\n", tokenFlags.role, expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "loadsim-operator", "Token subject.")
	tokenCmd.Flags().StringVar(&tokenFlags.role, "role", models.RoleOperator, "operator or viewer.")
	rootCmd.AddCommand(tokenCmd)
}
