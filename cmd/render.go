package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/damage-vis/internal/catalog"
	"github.com/sells-group/damage-vis/internal/config"
	"github.com/sells-group/damage-vis/internal/dataset"
	"github.com/sells-group/damage-vis/internal/label"
	"github.com/sells-group/damage-vis/internal/manifest"
	"github.com/sells-group/damage-vis/internal/overlay"
	"github.com/sells-group/damage-vis/internal/wkt"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render damage overlays for a dataset split",
	Long:  "Reads labels/*.json under --root, draws each label's polygons over images/<stem>.png and writes <out>/<stem>_vis.png.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRenderFlags(cmd, &cfg.Render)
		if err := cfg.Validate("render"); err != nil {
			return err
		}

		layout, err := dataset.NewLayout(cfg.Render.Root, cfg.Render.Out)
		if err != nil {
			return err
		}

		var cat *catalog.Catalog
		if cfg.Catalog.Path != "" {
			cat, err = openCatalog(ctx, cfg.Catalog.Path)
			if err != nil {
				return err
			}
			defer cat.Close() //nolint:errcheck
		}

		_, err = runRender(ctx, layout, cfg.Render, renderDeps{
			renderer:     overlay.NewRenderer(),
			catalog:      cat,
			manifestPath: manifestPath(layout, cfg.Manifest),
		})
		return err
	},
}

func init() {
	addRenderFlags(renderCmd)
	rootCmd.AddCommand(renderCmd)
}

func addRenderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("root", "", "dataset split directory containing images/ and labels/")
	f.String("out", "vis_labels", "output directory, relative to --root unless absolute")
	f.Int("line-width", 2, "outline width in pixels")
	f.Int("limit", 0, "number of label files to render (0 = all); with --sample, number of pre/post pairs")
	f.Int64("seed", 42, "random seed for --sample")
	f.Bool("sample", false, "render a random sample of pre/post pairs")
	f.Int("workers", 0, "concurrent renders (default from config)")
}

// applyRenderFlags overrides config values with flags the user set explicitly.
func applyRenderFlags(cmd *cobra.Command, rc *config.RenderConfig) {
	f := cmd.Flags()
	if f.Changed("root") {
		rc.Root, _ = f.GetString("root")
	}
	if f.Changed("out") {
		rc.Out, _ = f.GetString("out")
	}
	if f.Changed("line-width") {
		rc.LineWidth, _ = f.GetInt("line-width")
	}
	if f.Changed("limit") {
		rc.Limit, _ = f.GetInt("limit")
	}
	if f.Changed("seed") {
		rc.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("sample") {
		rc.Sample, _ = f.GetBool("sample")
	}
	// 0 keeps render.workers from config
	if w, _ := f.GetInt("workers"); f.Changed("workers") && w != 0 {
		rc.Workers = w
	}
}

func manifestPath(layout dataset.Layout, mc config.ManifestConfig) string {
	if !mc.Enabled {
		return ""
	}
	name := mc.Name
	if name == "" {
		name = manifest.DefaultName
	}
	return filepath.Join(layout.Out, name)
}

// renderDeps are the collaborators of a render batch. catalog and manifestPath are
// optional.
type renderDeps struct {
	renderer     *overlay.Renderer
	catalog      *catalog.Catalog
	manifestPath string
}

// renderSummary counts the outcomes of a batch.
type renderSummary struct {
	Rendered int64
	Missing  int64
	Failed   int64
	Skipped  int64
}

// runRender selects label files, renders them concurrently and records the results.
// Individual pair failures are logged and counted; only setup errors and cancellation
// are returned. A cancelled batch still finishes its catalog run and manifest with the
// pairs completed so far.
func runRender(ctx context.Context, layout dataset.Layout, rc config.RenderConfig, deps renderDeps) (renderSummary, error) {
	var summary renderSummary

	names, err := dataset.ListLabels(layout.Labels)
	if err != nil {
		return summary, err
	}
	names, err = dataset.Select(names, dataset.Selection{Limit: rc.Limit, Sample: rc.Sample, Seed: rc.Seed})
	if err != nil {
		return summary, err
	}
	pairs := layout.Pairs(names)

	// bookkeeping outlives cancellation so an interrupted run is still recorded
	storeCtx := context.WithoutCancel(ctx)

	var runID string
	if deps.catalog != nil {
		run, err := deps.catalog.CreateRun(storeCtx, layout.Root)
		if err != nil {
			return summary, err
		}
		runID = run.ID
	}

	mb := manifest.NewBuilder(runID, manifest.Settings{
		Root:      layout.Root,
		Out:       layout.Out,
		LineWidth: rc.LineWidth,
		Limit:     rc.Limit,
		Sample:    rc.Sample,
		Seed:      rc.Seed,
		Workers:   rc.Workers,
	})

	zap.L().Info("rendering labels",
		zap.String("root", layout.Root),
		zap.String("out", layout.Out),
		zap.Int("labels", len(pairs)),
		zap.Int("workers", rc.Workers),
		zap.String("run_id", runID),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(rc.Workers, 1))

	var rendered, missing, failed, skipped atomic.Int64

	for _, pair := range pairs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			log := zap.L().With(zap.String("label", filepath.Base(pair.Label)))

			res := renderPair(deps.renderer, pair, rc.LineWidth)
			switch res.status {
			case catalog.StatusOK:
				rendered.Add(1)
				skipped.Add(int64(res.skipped))
				log.Info("rendered", zap.String("output", pair.Output),
					zap.Int("features", res.features), zap.Int("skipped_rings", res.skipped))
			case catalog.StatusMissing:
				missing.Add(1)
				log.Warn("image not found, skipping", zap.String("image", pair.Image))
			default:
				failed.Add(1)
				log.Error("render failed", zap.Error(res.err))
			}

			mb.Add(res.manifestItem(pair), res.categories)

			if deps.catalog != nil {
				if err := deps.catalog.RecordRender(storeCtx, res.catalogRender(runID, pair), res.footprints); err != nil {
					log.Warn("catalog: record render failed", zap.Error(err))
				}
			}
			return nil // don't abort batch on individual failure
		})
	}

	waitErr := g.Wait()

	summary = renderSummary{
		Rendered: rendered.Load(),
		Missing:  missing.Load(),
		Failed:   failed.Load(),
		Skipped:  skipped.Load(),
	}

	if deps.catalog != nil {
		if err := deps.catalog.FinishRun(storeCtx, runID, int(summary.Rendered), int(summary.Missing), int(summary.Failed)); err != nil {
			zap.L().Warn("catalog: finish run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	if deps.manifestPath != "" {
		if err := manifest.Write(deps.manifestPath, mb.Build()); err != nil {
			zap.L().Warn("manifest write failed", zap.String("path", deps.manifestPath), zap.Error(err))
		}
	}

	if waitErr != nil {
		zap.L().Warn("render interrupted",
			zap.Int64("rendered", summary.Rendered),
			zap.Int64("missing", summary.Missing),
			zap.Int64("failed", summary.Failed),
			zap.Int("labels", len(pairs)),
			zap.Error(waitErr),
		)
		return summary, eris.Wrap(waitErr, "render batch")
	}

	zap.L().Info("render complete",
		zap.Int64("rendered", summary.Rendered),
		zap.Int64("missing", summary.Missing),
		zap.Int64("failed", summary.Failed),
		zap.Int64("skipped_rings", summary.Skipped),
		zap.String("out", layout.Out),
	)
	return summary, nil
}

// pairResult is the outcome of rendering one pair.
type pairResult struct {
	status     catalog.RenderStatus
	err        error
	features   int
	drawn      int
	skipped    int
	categories map[overlay.Category]int
	footprints []catalog.Footprint
}

// renderPair loads, renders and saves one pair. It never returns an error; failures are
// reported in the result.
func renderPair(renderer *overlay.Renderer, pair dataset.Pair, lineWidth int) pairResult {
	if !pair.HasImage() {
		return pairResult{status: catalog.StatusMissing}
	}

	fail := func(err error) pairResult {
		return pairResult{status: catalog.StatusFailed, err: err}
	}

	rec, err := label.Load(pair.Label)
	if err != nil {
		return fail(err)
	}
	geoms, err := rec.Geometries()
	if err != nil {
		return fail(err)
	}
	base, err := dataset.LoadImage(pair.Image)
	if err != nil {
		return fail(err)
	}
	out, err := renderer.Render(base, geoms, lineWidth)
	if err != nil {
		return fail(err)
	}
	if err := dataset.SaveImage(pair.Output, out); err != nil {
		return fail(err)
	}

	drawn, skipped := overlay.CountDrawable(geoms)
	return pairResult{
		status:     catalog.StatusOK,
		features:   len(rec.Features),
		drawn:      drawn,
		skipped:    skipped,
		categories: rec.CategoryCounts(),
		footprints: footprints(geoms),
	}
}

// footprints converts drawable geometries to catalog footprints.
func footprints(geoms []overlay.LabeledGeometry) []catalog.Footprint {
	var out []catalog.Footprint
	for _, g := range geoms {
		mp := wkt.ToMultiPolygon(g.Rings)
		if mp.NumPolygons() == 0 {
			continue
		}
		var area float64
		for _, r := range g.Rings {
			area += wkt.Area(r)
		}
		out = append(out, catalog.Footprint{Category: g.Category, Area: area, Geometry: mp})
	}
	return out
}

func (r pairResult) manifestItem(pair dataset.Pair) manifest.Item {
	item := manifest.Item{
		Stem:         pair.Stem,
		Status:       string(r.status),
		Features:     r.features,
		DrawnRings:   r.drawn,
		SkippedRings: r.skipped,
	}
	if r.status == catalog.StatusOK {
		item.Output = pair.Output
	}
	if r.err != nil {
		item.Error = r.err.Error()
	}
	return item
}

func (r pairResult) catalogRender(runID string, pair dataset.Pair) *catalog.Render {
	cr := &catalog.Render{
		RunID:        runID,
		Stem:         pair.Stem,
		Label:        pair.Label,
		Image:        pair.Image,
		Output:       pair.Output,
		Features:     r.features,
		DrawnRings:   r.drawn,
		SkippedRings: r.skipped,
		Status:       r.status,
	}
	if r.err != nil {
		cr.Error = r.err.Error()
	}
	return cr
}
