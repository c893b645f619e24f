//go:build gocv
// +build gocv

package raster

import (
	"image"

	"gocv.io/x/gocv"
)

// resample uses OpenCV: area interpolation when shrinking, bilinear when
// enlarging. It falls back to the pure-Go path if the conversion fails.
func resample(src *image.RGBA, width, height int) image.Image {
	mat, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return bilinear(src, width, height)
	}
	defer mat.Close()

	interp := gocv.InterpolationLinear
	if width < mat.Cols() || height < mat.Rows() {
		interp = gocv.InterpolationArea
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(mat, &dst, image.Pt(width, height), 0, 0, interp)

	out, err := dst.ToImage()
	if err != nil {
		return bilinear(src, width, height)
	}
	return out
}
