package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

type scrapeOptions struct {
	target  string
	force   bool
	timeout time.Duration
}

// newScrapeCmd runs a single scrape in-process and exits when it finishes.
func newScrapeCmd(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrape one URL in-process and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			app, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.Background()) }()

			if err := app.Start(ctx); err != nil {
				return err
			}
			id, err := app.RequestScrape(ctx, args[0], scrape.TargetType(opts.target), opts.force)
			if err != nil {
				return fmt.Errorf("request scrape: %w", err)
			}
			job, err := app.WaitForJob(ctx, id, 250*time.Millisecond)
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
	cmd.Flags().StringVar(&opts.target, "type", string(scrape.TargetCategory), "target type: navigation|category|product")
	cmd.Flags().BoolVar(&opts.force, "force", false, "bypass deduplication")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "maximum time to wait for the job")
	return cmd
}
