//go:build !gocv
// +build !gocv

package raster

import "image"

func resample(src *image.RGBA, width, height int) image.Image {
	return bilinear(src, width, height)
}
