package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/anime-shed/roi-gridview-go/internal/config"
	"github.com/anime-shed/roi-gridview-go/internal/container"
	"github.com/anime-shed/roi-gridview-go/internal/service"
)

type rootOpts struct {
	cacheDir string
	logLevel string

	container *container.Container
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
roictl loads, caches and orders regions of interest without a server.

Configuration is read from the same environment variables as the API
server (CROP_SERVICE_URL, CACHE_DIR, CACHE_SIZE_MB, LOAD_WORKERS, ...).

Workflow:
  roictl sort --file query.yaml --strategy sharpness      # Load every region and order it by sharpness
  roictl sort -f query.yaml -s label -s recorded_timestamp # Multi-key metadata ordering, no pixels needed
  roictl cache clear                                       # Empty the region cache
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "roictl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		PersistentPreRunE: opts.PersistentPreRunE,
		PersistentPostRun: opts.PersistentPostRun,
	}
	cmd.PersistentFlags().StringVar(&opts.cacheDir, "cache-dir", "", "cache directory; overrides CACHE_DIR")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level; overrides LOG_LEVEL")

	cmd.AddCommand(
		newSort(opts).Command(),
		newCache(opts).Command(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	} else if cfg.LogLevel == "info" {
		// Keep stdout for the ordering
		cfg.LogLevel = "warn"
	}
	opts.container, err = container.NewContainer(cfg)
	return err
}

func (opts *rootOpts) PersistentPostRun(_ *cobra.Command, _ []string) {
	if opts.container != nil {
		opts.container.Close()
	}
}

func (opts *rootOpts) engine() service.GridService {
	return opts.container.GridService()
}
