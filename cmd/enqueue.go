package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// newEnqueueCmd submits a scrape request to a running server.
func newEnqueueCmd() *cobra.Command {
	client := &clientOptions{}
	var (
		target  string
		force   bool
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "enqueue <url>",
		Short: "Request a scrape from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client.client()
			id, err := c.requestScrape(ctx, args[0], target, force)
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), map[string]int64{"job_id": id})
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			job, err := c.waitForJob(waitCtx, id, time.Second)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), job); err != nil {
				return err
			}
			if job.Status == scrape.JobStatusFailed {
				return fmt.Errorf("job %d failed", job.ID)
			}
			return nil
		},
	}
	addClientFlags(cmd, client)
	cmd.Flags().StringVar(&target, "type", string(scrape.TargetCategory), "target type: navigation|category|product")
	cmd.Flags().BoolVar(&force, "force", false, "bypass deduplication")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "maximum time to wait with --wait")
	return cmd
}

func addClientFlags(cmd *cobra.Command, opts *clientOptions) {
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "base URL of the scrape API")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key sent as X-API-Key")
}
