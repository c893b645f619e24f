package heatmap

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

var Red = color.RGBA{255, 0, 0, 255}

// Render paints every cell onto dst in c, blended with the cell's alpha.
// Edges are rounded so neighbouring cells share borders without overlap.
func Render(dst draw.Image, cells []Cell, c color.RGBA) {
	src := image.NewUniform(c)
	for _, cell := range cells {
		alpha := math.Max(0, math.Min(1, cell.Alpha))
		if alpha == 0 {
			continue
		}
		r := image.Rect(
			int(math.Round(cell.X)),
			int(math.Round(cell.Y)),
			int(math.Round(cell.X+cell.Width)),
			int(math.Round(cell.Y+cell.Height)),
		).Add(dst.Bounds().Min)
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
		draw.DrawMask(dst, r, src, image.Point{}, mask, image.Point{}, draw.Over)
	}
}

// Overlay returns a transparent width x height image with the cells painted
// in red, ready to be layered over the drawing.
func Overlay(width, height int, cells []Cell) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	Render(img, cells, Red)
	return img
}

// Compose draws src and the red overlay into a new image of src's size.
func Compose(src image.Image, cells []Cell) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	Render(out, cells, Red)
	return out
}
