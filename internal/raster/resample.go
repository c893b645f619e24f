package raster

import (
	"image"

	"github.com/nfnt/resize"
)

func bilinear(src *image.RGBA, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), src, resize.Bilinear)
}
