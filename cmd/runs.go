package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/damage-vis/internal/catalog"
	"github.com/sells-group/damage-vis/internal/overlay"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect render run history",
	Long:  "Commands for listing and viewing render runs recorded in the catalog.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List render runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cat, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := cat.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its renders and category totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cat, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		detail, err := loadRunDetail(ctx, cat, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

// -- runs totals --

var runsTotalsCmd = &cobra.Command{
	Use:   "totals <run-id>",
	Short: "Show footprint counts and areas per damage category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cat, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		totals, err := cat.CategoryTotals(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs totals")
		}
		formatCategoryTotals(os.Stdout, totals)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsTotalsCmd)
	rootCmd.AddCommand(runsCmd)
}

func initCatalog(ctx context.Context) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return nil, eris.New("catalog.path is not configured")
	}
	return openCatalog(ctx, cfg.Catalog.Path)
}

// runDetail is the JSON document printed by runs show.
type runDetail struct {
	Run        *catalog.Run                               `json:"run"`
	Categories map[overlay.Category]catalog.CategoryTotal `json:"categories"`
	Renders    []catalog.Render                           `json:"renders"`
}

func loadRunDetail(ctx context.Context, cat *catalog.Catalog, runID string) (*runDetail, error) {
	run, err := cat.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	totals, err := cat.CategoryTotals(ctx, runID)
	if err != nil {
		return nil, err
	}
	renders, err := cat.ListRenders(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &runDetail{Run: run, Categories: totals, Renders: renders}, nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []catalog.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tROOT\tRENDERED\tMISSING\tFAILED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t-------\t------\t-------\t--------")

	for _, r := range runs {
		dur := "running"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		root := r.Root
		if len(root) > 40 {
			root = "..." + root[len(root)-37:]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			root,
			r.Rendered,
			r.Missing,
			r.Failed,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatCategoryTotals writes per-category totals to w in palette order, then any
// unrecognised categories alphabetically.
func formatCategoryTotals(out io.Writer, totals map[overlay.Category]catalog.CategoryTotal) {
	order := append([]overlay.Category(nil), overlay.Categories...)
	var extra []overlay.Category
	for c := range totals {
		if !c.Known() {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	order = append(order, extra...)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tFEATURES\tAREA_PX")
	for _, c := range order {
		t, ok := totals[c]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.0f\n", c, t.Features, t.Area)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
