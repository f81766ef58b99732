package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anime-shed/roi-gridview-go/internal/registry"
	"github.com/anime-shed/roi-gridview-go/internal/sorting"
	"github.com/anime-shed/roi-gridview-go/internal/strategy"
)

type sortOpts struct {
	*rootOpts
	file       string
	strategies kindsValue
	descending bool
	reference  string
	timeout    time.Duration
}

func newSort(parent *rootOpts) *sortOpts {
	return &sortOpts{rootOpts: parent}
}

func (opts *sortOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Load a saved query and print its regions in sorted order.",
		Example: makeExample(
			"roictl sort --file query.yaml --strategy sharpness",
			"roictl sort -f query.yaml -s label_distance --reference 'Aegina tentacle'",
			"roictl sort -f query.yaml -s embedding   # reference_ids come from the query file",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "YAML query file with the items to order")
	cmd.Flags().VarP(&opts.strategies, "strategy", "s", "sort strategy, repeatable for secondary keys; one of: "+strategyNames())
	cmd.Flags().BoolVarP(&opts.descending, "descending", "d", false, "reverse the order of every key")
	cmd.Flags().StringVar(&opts.reference, "reference", "", "reference label for label_distance; overrides the query file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "how long to wait for pixel loads")
	return cmd
}

func (opts *sortOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	if opts.file == "" {
		return newUsageError("-f, --file is required")
	}
	query, err := readQueryFile(opts.file)
	if err != nil {
		return err
	}
	req := opts.request(query)

	engine := opts.engine()
	if _, err := engine.Replace(query.items()); err != nil {
		return err
	}

	out, err := engine.Sort(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	// Pixel strategies queue loads; sort again once every item settled
	for len(out.Pending) > 0 {
		if err := engine.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for loads: %w", err)
		}
		if out, err = engine.Sort(req); err != nil {
			return err
		}
	}

	entries, _ := engine.Items()
	return printOrdering(cmd.OutOrStdout(), out, entries)
}

func (opts *sortOpts) request(query *queryFile) sorting.Request {
	kinds := opts.strategies.kinds
	if len(kinds) == 0 {
		kinds = []strategy.Kind{strategy.None}
	}
	req := sorting.Request{
		Reference:    strategy.Reference{Label: query.ReferenceLabel},
		ReferenceIDs: query.ReferenceIDs,
	}
	if opts.reference != "" {
		req.Reference.Label = opts.reference
	}
	for _, k := range kinds {
		req.Criteria = append(req.Criteria, sorting.Criterion{Kind: k, Descending: opts.descending})
	}
	return req
}

func printOrdering(w io.Writer, out sorting.Ordering, entries []registry.Entry) error {
	byID := make(map[uuid.UUID]registry.Entry, len(entries))
	for _, e := range entries {
		byID[e.Item.ID] = e
	}

	tw := newTabwriter(w)
	fmt.Fprintln(tw, "RANK\tID\tLABEL\tSTATE\tSOURCE\tERROR")
	for i, id := range out.IDs {
		e := byID[id]
		label, state, source, errText := "", "", "", ""
		if e.Item != nil {
			label = e.Item.Metadata.Label()
			state = e.State.String()
		}
		if e.Pixels != nil {
			source = string(e.Pixels.Source)
		}
		if e.Err != nil {
			errText = e.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, id, label, state, source, errText)
	}
	return tw.Flush()
}
