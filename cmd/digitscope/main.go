// Command digitscope classifies a digit image and can write the occlusion
// heatmap next to it.
//
//	digitscope -model models/mnist_dnn.onnx -explain heat.png digit.png
//	digitscope -backend linear digit.png
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"

	"github.com/Brownie44l1/digitscope/internal/config"
	"github.com/Brownie44l1/digitscope/internal/container"
	"github.com/Brownie44l1/digitscope/internal/heatmap"
	"github.com/Brownie44l1/digitscope/internal/model"
	"github.com/Brownie44l1/digitscope/internal/model/linear"
	"github.com/Brownie44l1/digitscope/internal/raster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	modelPath := flag.String("model", cfg.ModelPath, "ONNX model path")
	backendName := flag.String("backend", cfg.Backend, "inference backend: ort, born or linear (built-in 0/1/7 templates)")
	ortLib := flag.String("ort-lib", cfg.ORTLibraryPath, "ONNX Runtime shared library path")
	explain := flag.String("explain", "", "write the drawing with the occlusion heatmap to this PNG")
	tile := flag.Int("tile", cfg.TileSize, "occlusion tile size, must divide 28")
	workers := flag.Int("workers", cfg.Workers, "concurrent occlusion inferences")
	dump := flag.Bool("grid", false, "print the rasterized 28x28 grid")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] image\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	var backend model.Backend
	if *backendName == "linear" {
		backend = linear.NewBackend(linear.Digits())
	} else {
		cfg.Backend, cfg.ORTLibraryPath = *backendName, *ortLib
		if backend, err = container.Backend(cfg); err != nil {
			log.Fatal(err)
		}
	}

	app, err := container.NewWithBackend(backend, *modelPath, *tile, *workers)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	if err := run(app, flag.Arg(0), *explain, *dump); err != nil {
		app.Close()
		log.Fatal(err)
	}
}

func run(app *container.Container, path, explainPath string, dump bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	img, _, err := raster.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	grid := raster.Rasterize(img)
	if dump {
		printGrid(grid)
	}

	ctx := context.Background()
	probs, err := app.Infer(ctx, grid)
	if err != nil {
		return err
	}
	printTop(probs)

	if explainPath == "" {
		return nil
	}

	result, err := app.Explain(ctx, "", grid)
	if err != nil {
		return err
	}
	b := img.Bounds()
	cells, err := heatmap.Project(result.Heat, result.TileSize, b.Dx(), b.Dy())
	if err != nil {
		return err
	}

	out, err := os.Create(explainPath)
	if err != nil {
		return err
	}
	if err := png.Encode(out, heatmap.Compose(img, cells)); err != nil {
		out.Close()
		return err
	}
	fmt.Printf("heatmap for class %d written to %s\n", result.Target, explainPath)
	return out.Close()
}

func printTop(p model.Probabilities) {
	for _, s := range p.Top(3) {
		fmt.Printf("%d  %5.1f%%\n", s.Class, s.Probability*100)
	}
}

func printGrid(g *model.Grid) {
	const shades = " .:-=+*#%@"
	for y := 0; y < model.GridSize; y++ {
		row := make([]byte, model.GridSize)
		for x := range row {
			v := g.At(x, y)
			row[x] = shades[min(len(shades)-1, int(v*float32(len(shades))))]
		}
		fmt.Println(string(row))
	}
}
