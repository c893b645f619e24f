package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Softmax turns raw scores into a probability distribution. The maximum is
// subtracted first so large logits cannot overflow exp. Logits must be
// finite; an infinite one yields NaN.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	out := make([]float64, len(logits))
	copy(out, logits)
	floats.AddConst(-floats.Max(out), out)
	for i, v := range out {
		out[i] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

func probabilities(logits []float32) Probabilities {
	scores := make([]float64, len(logits))
	for i, v := range logits {
		scores[i] = float64(v)
	}
	var p Probabilities
	copy(p[:], Softmax(scores))
	return p
}
