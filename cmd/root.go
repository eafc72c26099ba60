// Package cmd defines and implements the CLI commands for the catalog-scraper executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
	"github.com/JakeFAU/catalog-scraper/internal/server"
)

// Runner is the subset of *server.App the commands use. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context) error
	Start(ctx context.Context) error
	Close(ctx context.Context) error
	RequestScrape(ctx context.Context, rawURL string, target scrape.TargetType, forceRefresh bool) (int64, error)
	WaitForJob(ctx context.Context, id int64, interval time.Duration) (scrape.ScrapeJob, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (Runner, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return appRunner{app}, nil
}

type appRunner struct{ *server.App }

func (r appRunner) RequestScrape(
	ctx context.Context,
	rawURL string,
	target scrape.TargetType,
	forceRefresh bool,
) (int64, error) {
	return r.Gatekeeper().RequestScrape(ctx, rawURL, target, forceRefresh)
}

type rootOptions struct {
	cfgFile string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "catalog-scraper",
		Short: "Scrapes a product catalog into a normalized relational model.",
		Long: `catalog-scraper accepts scrape requests for catalog URLs, deduplicates them,
and runs them through a worker pool that loads each page, extracts navigation,
categories, products and reviews, and reconciles them into the catalog store.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML); SCRAPER_* env vars override it")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newScrapeCmd(opts))
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
