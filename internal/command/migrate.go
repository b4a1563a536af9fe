package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			if err := cc.Store.Migrate(cmd.Context()); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s store\n", cc.Config.Store.Driver)
			return nil
		},
	}
}
