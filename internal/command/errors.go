package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/vectorflow"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	if errors.Is(err, vectorflow.ErrMigrationFailed) || isSchemaError(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the store schema looks out of date. Try: vectorflow migrate")
	}
	return err
}

// isSchemaError checks for a missing table or column in a SQL store.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "does not exist")
}
