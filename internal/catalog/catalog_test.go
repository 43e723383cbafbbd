package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/damage-vis/internal/overlay"
	"github.com/sells-group/damage-vis/internal/wkt"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func square(x, y, side float64) wkt.Ring {
	return wkt.Ring{{X: x, Y: y}, {X: x + side, Y: y}, {X: x + side, Y: y + side}, {X: x, Y: y + side}}
}

func footprint(cat overlay.Category, rings ...wkt.Ring) Footprint {
	var area float64
	for _, r := range rings {
		area += wkt.Area(r)
	}
	return Footprint{Category: cat, Area: area, Geometry: wkt.ToMultiPolygon(rings)}
}

func TestCatalog_MigrateIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Migrate(context.Background()))
}

func TestCatalog_CreateAndGetRun(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	run, err := c.CreateRun(ctx, "/data/tier1")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())

	got, err := c.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "/data/tier1", got.Root)
	assert.Nil(t, got.FinishedAt)
	assert.Zero(t, got.Rendered)
}

func TestCatalog_GetRun_NotFound(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestCatalog_FinishRun(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	run, err := c.CreateRun(ctx, "/data")
	require.NoError(t, err)
	require.NoError(t, c.FinishRun(ctx, run.ID, 7, 2, 1))

	got, err := c.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 7, got.Rendered)
	assert.Equal(t, 2, got.Missing)
	assert.Equal(t, 1, got.Failed)
}

func TestCatalog_FinishRun_NotFound(t *testing.T) {
	c := newTestCatalog(t)

	err := c.FinishRun(context.Background(), "nope", 0, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: nope")
}

func TestCatalog_ListRuns(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := c.CreateRun(ctx, "/data")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := c.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := c.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCatalog_RecordRender_WithFootprints(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	run, err := c.CreateRun(ctx, "/data")
	require.NoError(t, err)

	r := &Render{
		RunID:        run.ID,
		Stem:         "guatemala-volcano_00000000_post_disaster",
		Label:        "labels/guatemala-volcano_00000000_post_disaster.json",
		Image:        "images/guatemala-volcano_00000000_post_disaster.png",
		Output:       "vis_labels/guatemala-volcano_00000000_post_disaster_vis.png",
		Features:     2,
		DrawnRings:   2,
		SkippedRings: 1,
		Status:       StatusOK,
	}
	fps := []Footprint{
		footprint(overlay.Destroyed, square(0, 0, 10)),
		footprint(overlay.NoDamage, square(20, 20, 4)),
	}
	require.NoError(t, c.RecordRender(ctx, r, fps))
	assert.NotEmpty(t, r.ID)

	renders, err := c.ListRenders(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, renders, 1)
	assert.Equal(t, r.Stem, renders[0].Stem)
	assert.Equal(t, StatusOK, renders[0].Status)
	assert.Equal(t, 1, renders[0].SkippedRings)
	assert.Empty(t, renders[0].Error)

	stored, err := c.Footprints(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, overlay.Destroyed, stored[0].Category)
	assert.InDelta(t, 100.0, stored[0].Area, 1e-9)
	require.Equal(t, 1, stored[0].Geometry.NumPolygons())
	assert.Equal(t, geom.Coord{10, 0}, stored[0].Geometry.Polygon(0).LinearRing(0).Coord(1))
}

func TestCatalog_RecordRender_Failed(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	run, err := c.CreateRun(ctx, "/data")
	require.NoError(t, err)

	r := &Render{RunID: run.ID, Stem: "bad", Label: "labels/bad.json", Status: StatusFailed, Error: "wkt: invalid x"}
	require.NoError(t, c.RecordRender(ctx, r, nil))

	renders, err := c.ListRenders(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, renders, 1)
	assert.Equal(t, StatusFailed, renders[0].Status)
	assert.Equal(t, "wkt: invalid x", renders[0].Error)
}

func TestCatalog_CategoryTotals(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	run, err := c.CreateRun(ctx, "/data")
	require.NoError(t, err)
	other, err := c.CreateRun(ctx, "/other")
	require.NoError(t, err)

	require.NoError(t, c.RecordRender(ctx, &Render{RunID: run.ID, Stem: "a", Status: StatusOK}, []Footprint{
		footprint(overlay.Destroyed, square(0, 0, 2)),
		footprint(overlay.Destroyed, square(5, 5, 3)),
	}))
	require.NoError(t, c.RecordRender(ctx, &Render{RunID: run.ID, Stem: "b", Status: StatusOK}, []Footprint{
		footprint(overlay.MinorDamage, square(0, 0, 1)),
	}))
	require.NoError(t, c.RecordRender(ctx, &Render{RunID: other.ID, Stem: "c", Status: StatusOK}, []Footprint{
		footprint(overlay.Destroyed, square(0, 0, 100)),
	}))

	totals, err := c.CategoryTotals(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, 2, totals[overlay.Destroyed].Features)
	assert.InDelta(t, 13.0, totals[overlay.Destroyed].Area, 1e-9)
	assert.Equal(t, 1, totals[overlay.MinorDamage].Features)
}
