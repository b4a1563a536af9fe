package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove completed and failed jobs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			maxAge := cc.Config.Cleanup.MaxAgeHours
			if cmd.Flags().Changed("max-age-hours") {
				maxAge, _ = cmd.Flags().GetInt("max-age-hours")
			}
			if maxAge < 0 {
				return writeCommandError(cmd, fmt.Errorf("max-age-hours must not be negative"))
			}

			n, err := cc.Jobs().Expire(cmd.Context(), time.Duration(maxAge)*time.Hour)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": n, "maxAgeHours": maxAge})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s) older than %dh\n", n, maxAge)
			return nil
		},
	}
	cmd.Flags().Int("max-age-hours", 0, "age cutoff in hours (default from config)")
	return cmd
}
