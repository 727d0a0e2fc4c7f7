package cli

import (
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Asset    []string // asset key segments
	Limit    int
}

// RunHistory is one run in the history output.
type RunHistory struct {
	Run              ir.Run `json:"run"`
	Events           int    `json:"events"`
	Outputs          int    `json:"outputs"`
	Observations     int    `json:"observations"`
	Failures         int    `json:"failures"`
	Materializations int    `json:"materializations"`
}

// AssetHistory is the materialization history of one asset.
type AssetHistory struct {
	AssetKey         ir.AssetKey          `json:"asset_key"`
	Materializations []ir.Materialization `json:"materializations"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs or asset materializations",
		Long: `Show what the store recorded.

Without --asset, lists the most recent runs with their event counts.
With --asset, lists the materializations of one asset, oldest first.
Asset key segments are given in order, repeated or comma separated.

Examples:
  dbtbridge history
  dbtbridge history --limit 5 --format json
  dbtbridge history --asset analytics,public,orders
  dbtbridge history --db ./runs.db --asset analytics --asset public --asset orders`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from deployment)")
	cmd.Flags().StringSliceVar(&opts.Asset, "asset", nil, "asset key segments")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of entries (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	_, d, err := loadDeployment(opts.RootOptions)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(opts.Database, d)
	if err != nil {
		return err
	}
	defer closeStore()

	out := opts.formatter(cmd)
	if len(opts.Asset) > 0 {
		return assetHistory(opts, st, out, cmd)
	}
	return runsHistory(opts, st, out, cmd)
}

func runsHistory(opts *HistoryOptions, st *store.Store, out *OutputFormatter, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}

	history := make([]RunHistory, 0, len(runs))
	for _, run := range runs {
		summary, err := st.GetRunSummary(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to summarize run", err)
		}
		history = append(history, RunHistory{
			Run:              summary.Run,
			Events:           summary.Events,
			Outputs:          summary.Outputs,
			Observations:     summary.Observations,
			Failures:         summary.Failures,
			Materializations: summary.Materializations,
		})
	}

	return out.Render(history, func(w io.Writer) {
		if len(history) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return
		}
		for _, h := range history {
			fmt.Fprintf(w, "%s  %-15s %-5s %-10s outputs=%d failures=%d materializations=%d\n",
				h.Run.ID, h.Run.Status, h.Run.Mode, h.Run.Deployment, h.Outputs, h.Failures, h.Materializations)
		}
	})
}

func assetHistory(opts *HistoryOptions, st *store.Store, out *OutputFormatter, cmd *cobra.Command) error {
	key := ir.NewAssetKey(opts.Asset...)
	ms, err := st.ListMaterializations(commandContext(cmd), key)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list materializations", err)
	}
	if opts.Limit > 0 && len(ms) > opts.Limit {
		ms = ms[len(ms)-opts.Limit:]
	}

	history := AssetHistory{AssetKey: key, Materializations: ms}
	return out.Render(history, func(w io.Writer) {
		if len(ms) == 0 {
			fmt.Fprintf(w, "%s was never materialized.\n", key)
			return
		}
		runs := lo.Uniq(lo.Map(ms, func(m ir.Materialization, _ int) string { return m.RunID }))
		fmt.Fprintf(w, "%s: %d materializations in %d runs\n", key, len(ms), len(runs))
		for _, m := range ms {
			fmt.Fprintf(w, "  [%d] run=%s %s\n", m.Seq, m.RunID, canonical(m.Metadata))
		}
	})
}
