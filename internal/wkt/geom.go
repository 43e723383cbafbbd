package wkt

import (
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ToMultiPolygon converts parsed rings to a go-geom MultiPolygon. Each ring becomes the
// shell of its own polygon, matching how rings are drawn. Rings with fewer than three
// points are left out.
func ToMultiPolygon(rings []Ring) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)

	for i, ring := range rings {
		if len(ring) < 3 {
			continue
		}

		lr := geom.NewLinearRingFlat(geom.XY, flatCoords(ring))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(lr); err != nil {
			zap.L().Debug("wkt: skipping malformed ring", zap.Int("ring", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("wkt: skipping malformed polygon", zap.Int("ring", i), zap.Error(err))
			continue
		}
	}

	return mp
}

// Area returns the unsigned area enclosed by a ring in square pixels.
func Area(ring Ring) float64 {
	if len(ring) < 3 {
		return 0
	}
	return math.Abs(geom.NewLinearRingFlat(geom.XY, flatCoords(ring)).Area())
}

// flatCoords converts points to flat coordinate pairs for go-geom, repeating the first
// point at the end when the ring is not already closed.
func flatCoords(ring Ring) []float64 {
	flat := make([]float64, 0, (len(ring)+1)*2)
	for _, p := range ring {
		flat = append(flat, p.X, p.Y)
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		flat = append(flat, ring[0].X, ring[0].Y)
	}
	return flat
}
