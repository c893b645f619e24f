package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/digitscope/internal/model"
)

func whiteCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func inkBox(g *model.Grid) image.Rectangle {
	var box image.Rectangle
	for y := 0; y < model.GridSize; y++ {
		for x := 0; x < model.GridSize; x++ {
			if g.At(x, y) > 0 {
				box = box.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return box
}

func TestRasterizeBlankCanvas(t *testing.T) {
	for _, size := range []image.Point{{280, 280}, {1, 1}, {50, 13}} {
		g := Rasterize(whiteCanvas(size.X, size.Y))
		require.Equal(t, model.Grid{}, *g, "canvas %v", size)
	}
}

func TestRasterizeEmptyImage(t *testing.T) {
	g := Rasterize(image.NewRGBA(image.Rectangle{}))
	require.Equal(t, model.Grid{}, *g)
}

func TestRasterizeCentredPixelIsSymmetric(t *testing.T) {
	img := whiteCanvas(29, 29)
	img.Set(14, 14, color.Black)

	g := Rasterize(img)

	var mass, cx, cy float64
	for y := 0; y < model.GridSize; y++ {
		for x := 0; x < model.GridSize; x++ {
			v := float64(g.At(x, y))
			mass += v
			cx += v * float64(x)
			cy += v * float64(y)
		}
	}
	require.Greater(t, mass, 0.0)
	require.InDelta(t, 13.5, cx/mass, 0.5)
	require.InDelta(t, 13.5, cy/mass, 0.5)
	require.Equal(t, image.Rect(4, 4, 24, 24), inkBox(g))
}

func TestRasterizeCropsScalesAndCentres(t *testing.T) {
	img := whiteCanvas(280, 280)
	fillRect(img, image.Rect(20, 100, 60, 220), color.Black)

	g := Rasterize(img)

	// 40x120 scales to 7x20 and lands at (10,4).
	want := image.Rect(10, 4, 17, 24)
	for y := 0; y < model.GridSize; y++ {
		for x := 0; x < model.GridSize; x++ {
			if image.Pt(x, y).In(want) {
				require.Equal(t, float32(1), g.At(x, y), "cell %d,%d", x, y)
			} else {
				require.Equal(t, float32(0), g.At(x, y), "cell %d,%d", x, y)
			}
		}
	}
}

func TestRasterizeIgnoresFaintSpecks(t *testing.T) {
	clean := whiteCanvas(200, 200)
	fillRect(clean, image.Rect(90, 40, 110, 160), color.Black)

	noisy := whiteCanvas(200, 200)
	fillRect(noisy, image.Rect(90, 40, 110, 160), color.Black)
	// intensity 0.1, below the ink threshold
	fillRect(noisy, image.Rect(2, 2, 6, 6), color.Gray{Y: 230})

	require.Equal(t, *Rasterize(clean), *Rasterize(noisy))
}

func TestRasterizeFallbackScalesWholeCanvas(t *testing.T) {
	img := whiteCanvas(56, 56)
	fillRect(img, img.Bounds(), color.Gray{Y: 217})

	g := Rasterize(img)
	for i, v := range g {
		require.InDelta(t, 1-217.0/255, v, 0.01, "cell %d", i)
	}
}

func TestRasterizeNoiseFloor(t *testing.T) {
	img := whiteCanvas(28, 28)
	fillRect(img, img.Bounds(), color.Gray{Y: 250})

	g := Rasterize(img)
	require.Equal(t, model.Grid{}, *g)
}

func TestRasterizeValuesInRange(t *testing.T) {
	img := whiteCanvas(120, 90)
	for i := 0; i < 60; i++ {
		img.Set(30+i, 20+i/2, color.Gray{Y: uint8(i * 4)})
	}
	g := Rasterize(img)
	for _, v := range g {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestNewCanvas(t *testing.T) {
	_, err := NewCanvas(2, 2, make([]byte, 15))
	require.ErrorIs(t, err, ErrBufferSize)

	_, err = NewCanvas(0, 2, nil)
	require.ErrorIs(t, err, ErrBufferSize)

	// Alpha is ignored: a fully transparent black pixel is still ink.
	pix := []byte{
		255, 255, 255, 255, 0, 0, 0, 0,
		255, 255, 255, 255, 255, 255, 255, 255,
	}
	c, err := NewCanvas(2, 2, pix)
	require.NoError(t, err)

	img := c.Image()
	require.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(1, 0))

	g := Rasterize(img)
	require.Equal(t, image.Rect(4, 4, 24, 24), inkBox(g))
}

func TestFlattenTransparentIsWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 15, 15))
	src.Set(10, 10, color.NRGBA{0, 0, 0, 255})

	flat := Flatten(src)
	require.Equal(t, image.Rect(0, 0, 10, 10), flat.Bounds())
	require.Equal(t, color.RGBA{255, 255, 255, 255}, flat.RGBAAt(0, 0))
	require.Equal(t, color.RGBA{0, 0, 0, 255}, flat.RGBAAt(5, 5))
}

func TestDecodeFlattensPNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.Set(1, 1, color.NRGBA{0, 0, 0, 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 0))
	require.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(1, 1))

	_, _, err = Decode(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}
