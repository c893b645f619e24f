// Package raster turns a drawing canvas of any size into the 28x28 intensity
// grid the digit models expect: the ink is cropped, scaled so its longer side
// spans 20 cells and centred, the way MNIST digits are framed.
package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/Brownie44l1/digitscope/internal/model"
)

const (
	TargetSize = model.GridSize
	InnerSize  = 20

	// InkThreshold is the intensity a pixel must exceed to count towards the
	// bounding box. Fainter pixels are anti-aliasing or paper noise.
	InkThreshold = 0.2

	// NoiseFloor is the intensity below which resampled cells are zeroed.
	NoiseFloor = 0.02
)

// Rasterize converts src into an intensity grid. Alpha is ignored; flatten
// transparent images first. A blank source yields an all-zero grid.
func Rasterize(src image.Image) *model.Grid {
	img := opaque(src)
	target := image.NewRGBA(image.Rect(0, 0, TargetSize, TargetSize))
	draw.Draw(target, target.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if img.Rect.Empty() {
		return intensities(target)
	}

	box, ok := inkBounds(img)
	if !ok {
		scaled := resample(img, TargetSize, TargetSize)
		draw.Draw(target, target.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
		return intensities(target)
	}

	sw, sh := box.Dx(), box.Dy()
	scale := float64(InnerSize) / float64(max(sw, sh))
	dw := max(1, int(math.Round(float64(sw)*scale)))
	dh := max(1, int(math.Round(float64(sh)*scale)))
	dx := (TargetSize - dw) / 2
	dy := (TargetSize - dh) / 2

	crop := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.Draw(crop, crop.Bounds(), img, box.Min, draw.Src)

	scaled := resample(crop, dw, dh)
	draw.Draw(target, image.Rect(dx, dy, dx+dw, dy+dh), scaled, scaled.Bounds().Min, draw.Src)
	return intensities(target)
}

func intensity(r, g, b uint8) float32 {
	gray := (float32(r) + float32(g) + float32(b)) / 3 / 255
	return 1 - gray
}

// inkBounds returns the smallest rectangle holding every pixel above
// InkThreshold.
func inkBounds(img *image.RGBA) (image.Rectangle, bool) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	minX, minY, maxX, maxY := w, h, -1, -1
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			if intensity(p[0], p[1], p[2]) <= InkThreshold {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func intensities(img *image.RGBA) *model.Grid {
	var g model.Grid
	for y := 0; y < TargetSize; y++ {
		for x := 0; x < TargetSize; x++ {
			i := img.PixOffset(x, y)
			v := intensity(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			if v < NoiseFloor {
				v = 0
			}
			g[y*TargetSize+x] = v
		}
	}
	return &g
}
