package overlay

import (
	"image"

	"github.com/sells-group/damage-vis/internal/wkt"
)

// clipRing clips ring to r grown by pad on every side using Sutherland-Hodgman. Rings
// already inside are returned unchanged. The result has fewer than three points when
// the ring lies entirely outside.
func clipRing(ring wkt.Ring, r image.Rectangle, pad float64) wkt.Ring {
	minX, minY := float64(r.Min.X)-pad, float64(r.Min.Y)-pad
	maxX, maxY := float64(r.Max.X)+pad, float64(r.Max.Y)+pad

	inside := true
	for _, p := range ring {
		if p.X < minX || p.X > maxX || p.Y < minY || p.Y > maxY {
			inside = false
			break
		}
	}
	if inside {
		return ring
	}

	out := clipEdge(ring, func(p wkt.Point) bool { return p.X >= minX }, atX(minX))
	out = clipEdge(out, func(p wkt.Point) bool { return p.X <= maxX }, atX(maxX))
	out = clipEdge(out, func(p wkt.Point) bool { return p.Y >= minY }, atY(minY))
	out = clipEdge(out, func(p wkt.Point) bool { return p.Y <= maxY }, atY(maxY))
	return out
}

func clipEdge(in wkt.Ring, inside func(wkt.Point) bool, cross func(a, b wkt.Point) wkt.Point) wkt.Ring {
	if len(in) == 0 {
		return nil
	}
	out := make(wkt.Ring, 0, len(in)+4)
	prev := in[len(in)-1]
	for _, cur := range in {
		ci, pi := inside(cur), inside(prev)
		switch {
		case ci && pi:
			out = append(out, cur)
		case ci:
			out = append(out, cross(prev, cur), cur)
		case pi:
			out = append(out, cross(prev, cur))
		}
		prev = cur
	}
	return out
}

// atX returns the intersection of segment ab with the vertical line at x.
func atX(x float64) func(a, b wkt.Point) wkt.Point {
	return func(a, b wkt.Point) wkt.Point {
		t := (x - a.X) / (b.X - a.X)
		return wkt.Point{X: x, Y: a.Y + t*(b.Y-a.Y)}
	}
}

// atY returns the intersection of segment ab with the horizontal line at y.
func atY(y float64) func(a, b wkt.Point) wkt.Point {
	return func(a, b wkt.Point) wkt.Point {
		t := (y - a.Y) / (b.Y - a.Y)
		return wkt.Point{X: a.X + t*(b.X-a.X), Y: y}
	}
}
