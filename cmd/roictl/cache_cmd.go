package main

import (
	"github.com/spf13/cobra"
)

type cacheOpts struct {
	*rootOpts
}

func newCache(parent *rootOpts) *cacheOpts {
	return &cacheOpts{rootOpts: parent}
}

func (opts *cacheOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the region cache.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "clear",
		Short:   "Remove every cached region.",
		Example: makeExample("roictl cache clear", "roictl cache clear --cache-dir /var/cache/roigrid"),
		RunE:    opts.clear,
	})
	return cmd
}

func (opts *cacheOpts) clear(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if err := opts.engine().ClearCache(); err != nil {
		return err
	}
	cmd.Println("cache cleared")
	return nil
}
