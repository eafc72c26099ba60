package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newStatusCmd prints a job from a running server.
func newStatusCmd() *cobra.Command {
	client := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a scrape job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			job, err := client.client().getJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	addClientFlags(cmd, client)
	return cmd
}
