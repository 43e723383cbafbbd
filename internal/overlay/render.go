// Package overlay draws damage-category polygons onto imagery.
//
// Rings are drawn on a transparent overlay so that fill alpha only blends within the
// overlay; the overlay is then composited over the base image and flattened to an opaque
// result.
package overlay

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"
	"golang.org/x/image/vector"

	"github.com/sells-group/damage-vis/internal/wkt"
)

// ErrInvalidImage is returned for a nil or zero-sized base image.
var ErrInvalidImage = eris.New("overlay: invalid base image")

// LabeledGeometry is the rings of one label feature and its damage category.
type LabeledGeometry struct {
	Category Category
	Rings    []wkt.Ring
}

// Renderer draws labeled geometries with a fixed style table.
type Renderer struct {
	styles StyleTable
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithStyles replaces the default xView2 palette.
func WithStyles(t StyleTable) Option {
	return func(r *Renderer) { r.styles = t }
}

// NewRenderer creates a Renderer using DefaultStyles unless overridden.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{styles: DefaultStyles()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Styles returns the renderer's style table.
func (r *Renderer) Styles() StyleTable {
	return r.styles
}

// Render draws geoms over base and returns an opaque image with the same dimensions.
// The result's origin is (0, 0) regardless of base.Bounds().Min. base is not modified.
func (r *Renderer) Render(base image.Image, geoms []LabeledGeometry, outlineWidth int) (*image.RGBA, error) {
	if base == nil || base.Bounds().Empty() {
		return nil, ErrInvalidImage
	}
	ov, err := r.DrawOverlay(base.Bounds().Size(), geoms, outlineWidth)
	if err != nil {
		return nil, err
	}
	return Composite(base, ov), nil
}

// DrawOverlay draws geoms onto a new transparent surface of the given size. Later
// geometries are drawn on top of earlier ones. Rings with fewer than three points are
// skipped.
func (r *Renderer) DrawOverlay(size image.Point, geoms []LabeledGeometry, outlineWidth int) (*image.RGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidImage
	}
	if outlineWidth < 1 {
		return nil, eris.Errorf("overlay: outline width must be >= 1, got %d", outlineWidth)
	}

	ov := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	dc := gg.NewContextForRGBA(ov)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetLineCap(gg.LineCapRound)

	bounds := ov.Rect
	pad := float64(outlineWidth) + 2

	// odd widths are centred on pixel centres so a 1 px outline covers one column
	wideOff := 0.0
	if outlineWidth%2 == 1 {
		wideOff = 0.5
	}

	for _, g := range geoms {
		style := r.styles.Lookup(g.Category)
		for _, ring := range g.Rings {
			if len(ring) < 3 {
				continue
			}
			ring = clipRing(ring, bounds, pad)
			if len(ring) < 3 {
				continue
			}

			fillRing(ov, ring, style.Fill)

			// polygon outline
			dc.SetColor(style.Outline)
			dc.SetLineWidth(1)
			tracePath(dc, ring, 0.5)
			dc.ClosePath()
			dc.Stroke()

			if outlineWidth > 1 {
				dc.SetLineWidth(float64(outlineWidth))
				tracePath(dc, ring, wideOff)
				dc.LineTo(ring[0].X+wideOff, ring[0].Y+wideOff)
				dc.Stroke()
			}
		}
	}

	return ov, nil
}

// CountDrawable reports how many rings DrawOverlay will draw and how many it will skip.
func CountDrawable(geoms []LabeledGeometry) (drawn, skipped int) {
	for _, g := range geoms {
		for _, ring := range g.Rings {
			if len(ring) < 3 {
				skipped++
			} else {
				drawn++
			}
		}
	}
	return drawn, skipped
}

func tracePath(dc *gg.Context, ring wkt.Ring, off float64) {
	dc.NewSubPath()
	dc.MoveTo(ring[0].X+off, ring[0].Y+off)
	for _, p := range ring[1:] {
		dc.LineTo(p.X+off, p.Y+off)
	}
}

// fillRing replaces overlay pixels covered by ring with c, blending by coverage only at
// anti-aliased edges. Where polygons overlap the later fill wins.
func fillRing(dst *image.RGBA, ring wkt.Ring, c color.NRGBA) {
	area := ringBounds(ring).Intersect(dst.Rect)
	if area.Empty() {
		return
	}

	z := vector.NewRasterizer(area.Dx(), area.Dy())
	ox, oy := float32(area.Min.X), float32(area.Min.Y)
	z.MoveTo(float32(ring[0].X)-ox, float32(ring[0].Y)-oy)
	for _, p := range ring[1:] {
		z.LineTo(float32(p.X)-ox, float32(p.Y)-oy)
	}
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, area.Dx(), area.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	// premultiplied fill
	a := uint32(c.A)
	fr, fg, fb := uint32(c.R)*a/255, uint32(c.G)*a/255, uint32(c.B)*a/255

	for y := 0; y < area.Dy(); y++ {
		for x := 0; x < area.Dx(); x++ {
			m := uint32(mask.Pix[mask.PixOffset(x, y)])
			if m == 0 {
				continue
			}
			i := dst.PixOffset(area.Min.X+x, area.Min.Y+y)
			px := dst.Pix[i : i+4 : i+4]
			inv := 255 - m
			px[0] = uint8((fr*m + uint32(px[0])*inv) / 255)
			px[1] = uint8((fg*m + uint32(px[1])*inv) / 255)
			px[2] = uint8((fb*m + uint32(px[2])*inv) / 255)
			px[3] = uint8((a*m + uint32(px[3])*inv) / 255)
		}
	}
}

// ringBounds returns the integer pixel rectangle containing ring.
func ringBounds(ring wkt.Ring) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range ring {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return image.Rect(
		clampInt(math.Floor(minX)), clampInt(math.Floor(minY)),
		clampInt(math.Ceil(maxX)), clampInt(math.Ceil(maxY)),
	)
}

func clampInt(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}
