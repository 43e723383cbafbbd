package overlay

import (
	"image"
	"image/color"
	"math"
)

// Composite blends the premultiplied overlay over base with the Porter-Duff "over"
// operator and drops the alpha channel. Colour is computed in non-premultiplied space,
// so a base pixel under a fully transparent overlay pixel keeps its exact RGB values even
// when the base itself is translucent.
//
// The overlay is read from its origin; base is read from base.Bounds().Min.
func Composite(base image.Image, overlay *image.RGBA) *image.RGBA {
	b := base.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst := nrgbaAt(base, b.Min.X+x, b.Min.Y+y)
			var src [4]uint8
			if (image.Point{X: x, Y: y}).In(overlay.Rect) {
				i := overlay.PixOffset(x, y)
				copy(src[:], overlay.Pix[i:i+4])
			}

			o := out.PixOffset(x, y)
			px := out.Pix[o : o+4 : o+4]
			px[3] = 255

			if src[3] == 0 {
				px[0], px[1], px[2] = dst.R, dst.G, dst.B
				continue
			}

			sa := float64(src[3]) / 255
			da := float64(dst.A) / 255
			keep := da * (1 - sa)
			oa := sa + keep
			px[0] = blend(src[0], dst.R, keep, oa)
			px[1] = blend(src[1], dst.G, keep, oa)
			px[2] = blend(src[2], dst.B, keep, oa)
		}
	}

	return out
}

// blend returns the unpremultiplied channel of src (premultiplied) over dst, where keep
// is the fraction of dst that survives and oa the resulting alpha.
func blend(src, dst uint8, keep, oa float64) uint8 {
	if oa <= 0 {
		return 0
	}
	v := (float64(src)/255 + float64(dst)/255*keep) / oa
	return uint8(math.Round(math.Min(math.Max(v, 0), 1) * 255))
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	switch m := img.(type) {
	case *image.NRGBA:
		return m.NRGBAAt(x, y)
	case *image.RGBA:
		if c := m.RGBAAt(x, y); c.A == 255 {
			return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
		}
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}
