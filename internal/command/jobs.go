package command

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/vectorflow/job"
)

// NewJobsCmd creates the jobs command group.
func NewJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect job records",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsGetCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			kind, _ := cmd.Flags().GetString("kind")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			if kind != "" && !job.Kind(kind).Valid() {
				return writeCommandError(cmd, fmt.Errorf("unknown job kind %q", kind))
			}

			recs, err := cc.Jobs().List(cmd.Context(), job.ListOpts{
				Kind:   job.Kind(kind),
				Status: job.Status(status),
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tCREATED\tERROR")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Kind, r.Status, r.CreatedAt.Format(time.RFC3339), r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("kind", "", "filter by kind")
	cmd.Flags().String("status", "", "filter by status")
	cmd.Flags().Int("limit", 50, "maximum number of jobs")
	cmd.Flags().Int("offset", 0, "number of jobs to skip")
	return cmd
}

func newJobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			rec, err := cc.Jobs().Get(cmd.Context(), args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
