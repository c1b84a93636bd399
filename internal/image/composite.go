package image

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/disintegration/imaging"
)

// Composite is a rendered overlay: the base image with annotations drawn on
// top, in the base image's pixel grid.
type Composite struct {
	Image  *image.RGBA
	Width  int
	Height int
	Drawn  []string // Field names drawn, in paint order
}

// NewComposite wraps a finished raster.
func NewComposite(img *image.RGBA, drawn []string) *Composite {
	b := img.Bounds()
	return &Composite{
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
		Drawn:  drawn,
	}
}

// EncodePNG writes the composite as PNG.
func (c *Composite) EncodePNG(w io.Writer) error {
	return imaging.Encode(w, c.Image, imaging.PNG)
}

// Save writes the composite to path; the format follows the extension.
func (c *Composite) Save(path string) error {
	return imaging.Save(c.Image, path)
}

// Clone copies src into a new RGBA raster whose origin is (0,0).
func Clone(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// BlendPixel composites src over the pixel at (x,y) with the given opacity.
// Pixels outside dst are ignored.
func BlendPixel(dst *image.RGBA, x, y int, src color.Color, opacity float64) {
	if !(image.Point{X: x, Y: y}.In(dst.Bounds())) {
		return
	}
	dst.SetRGBA(x, y, blend(dst.RGBAAt(x, y), src, opacity))
}

// blend performs source-over alpha compositing of src onto dst.
func blend(dst, src color.Color, opacity float64) color.RGBA {
	sr, sg, sb, sa := src.RGBA()
	dr, dg, db, da := dst.RGBA()

	// Convert to 0-1 range (src is premultiplied, so un-premultiply first)
	sf := [4]float64{0, 0, 0, float64(sa) / 65535.0}
	if sa > 0 {
		sf[0] = float64(sr) / float64(sa)
		sf[1] = float64(sg) / float64(sa)
		sf[2] = float64(sb) / float64(sa)
	}
	df := [4]float64{float64(dr) / 65535.0, float64(dg) / 65535.0, float64(db) / 65535.0, float64(da) / 65535.0}

	alpha := sf[3] * opacity
	finalR := sf[0]*alpha + df[0]*(1-alpha)
	finalG := sf[1]*alpha + df[1]*(1-alpha)
	finalB := sf[2]*alpha + df[2]*(1-alpha)
	finalA := alpha + df[3]*(1-alpha)

	return color.RGBA{
		R: uint8(math.Round(clamp(finalR, 0, 1) * 255)),
		G: uint8(math.Round(clamp(finalG, 0, 1) * 255)),
		B: uint8(math.Round(clamp(finalB, 0, 1) * 255)),
		A: uint8(math.Round(clamp(finalA, 0, 1) * 255)),
	}
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
