package detection

import (
	"image"

	"golang.org/x/image/draw"
)

const appearanceGrid = 8

// Appearance describes the face crop as an 8x8 grid of mean-centered
// luminance values, scaled down with bilinear interpolation.
func Appearance(img image.Image, box Box) []float64 {
	src := image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H).Intersect(img.Bounds())
	out := make([]float64, appearanceGrid*appearanceGrid)
	if src.Empty() {
		return out
	}

	dst := image.NewGray(image.Rect(0, 0, appearanceGrid, appearanceGrid))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	var mean float64
	for y := range appearanceGrid {
		for x := range appearanceGrid {
			v := float64(dst.GrayAt(x, y).Y) / 255
			out[y*appearanceGrid+x] = v
			mean += v
		}
	}
	mean /= float64(len(out))

	for i := range out {
		out[i] -= mean
	}
	return out
}
