package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/damage-vis/internal/wkt"
)

func TestClipRing_InsideUnchanged(t *testing.T) {
	ring := square(2, 2, 8, 8)
	got := clipRing(ring, image.Rect(0, 0, 10, 10), 0)
	assert.Equal(t, ring, got)
}

func TestClipRing_CrossingEdge(t *testing.T) {
	got := clipRing(square(-5, -5, 5, 5), image.Rect(0, 0, 10, 10), 0)
	require.GreaterOrEqual(t, len(got), 3)
	for _, p := range got {
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.GreaterOrEqual(t, p.Y, 0.0)
	}
	assert.InDelta(t, 25.0, wkt.Area(got), 1e-9)
}

func TestClipRing_Outside(t *testing.T) {
	got := clipRing(square(50, 50, 60, 60), image.Rect(0, 0, 10, 10), 2)
	assert.Less(t, len(got), 3)
}

func TestClipRing_HugeCoordinates(t *testing.T) {
	got := clipRing(square(-1e12, -1e12, 1e12, 1e12), image.Rect(0, 0, 20, 20), 3)
	require.GreaterOrEqual(t, len(got), 3)
	assert.InDelta(t, 26.0*26.0, wkt.Area(got), 1e-6)
}

func TestDrawOverlay_CoveringRingFarOutside(t *testing.T) {
	for _, e := range []float64{1e7, 1e9, 1e15} {
		ov, err := NewRenderer().DrawOverlay(image.Pt(20, 20), []LabeledGeometry{{
			Category: Destroyed,
			Rings:    []wkt.Ring{square(-e, -e, e, e)},
		}}, 2)
		require.NoError(t, err)
		assert.Equal(t, color.RGBA{80, 0, 0, 80}, ov.RGBAAt(10, 10), "extent %g", e)
		assert.Equal(t, color.RGBA{80, 0, 0, 80}, ov.RGBAAt(0, 0), "extent %g", e)
	}
}

func TestDrawOverlay_RingCrossingEdge(t *testing.T) {
	ov, err := NewRenderer().DrawOverlay(image.Pt(20, 20), []LabeledGeometry{{
		Category: Destroyed,
		Rings:    []wkt.Ring{square(-10, -10, 10, 10)},
	}}, 2)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{80, 0, 0, 80}, ov.RGBAAt(5, 5))
	assert.Zero(t, ov.RGBAAt(15, 15).A)
	// the outline along x=10 is visible
	assert.GreaterOrEqual(t, ov.RGBAAt(10, 5).A, uint8(250))
}
