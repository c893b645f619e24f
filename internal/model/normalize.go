package model

// MNIST calibration constants the models are trained against.
const (
	Mean = 0.1307
	Std  = 0.3081
)

// Normalize applies (v - Mean) / Std to every cell, producing the tensor data
// fed to the model.
func Normalize(g *Grid) []float32 {
	out := make([]float32, GridLen)
	for i, v := range g {
		out[i] = (v - Mean) / Std
	}
	return out
}

// Denormalize inverts Normalize.
func Denormalize(data []float32) *Grid {
	var g Grid
	for i := 0; i < GridLen && i < len(data); i++ {
		g[i] = data[i]*Std + Mean
	}
	return &g
}
