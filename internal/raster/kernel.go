package raster

import (
	"fmt"
	"math"
)

// Kernel is a square, odd sized weight grid centered on the target pixel.
// Zero weights exclude a neighbor.
type Kernel struct {
	Weights [][]float64
}

func Square(radius int) Kernel {
	size := 2*radius + 1
	w := make([][]float64, size)
	for r := range w {
		w[r] = make([]float64, size)
		for c := range w[r] {
			w[r][c] = 1
		}
	}
	return Kernel{Weights: w}
}

func Circle(radius int) Kernel {
	size := 2*radius + 1
	w := make([][]float64, size)
	for r := range w {
		w[r] = make([]float64, size)
		for c := range w[r] {
			dy, dx := float64(r-radius), float64(c-radius)
			if math.Sqrt(dx*dx+dy*dy) <= float64(radius) {
				w[r][c] = 1
			}
		}
	}
	return Kernel{Weights: w}
}

func Fixed(weights [][]float64) (Kernel, error) {
	n := len(weights)
	if n == 0 || n%2 == 0 {
		return Kernel{}, fmt.Errorf("kernel size must be odd, got %d", n)
	}
	w := make([][]float64, n)
	for r, row := range weights {
		if len(row) != n {
			return Kernel{}, fmt.Errorf("kernel row %d has %d weights, want %d", r, len(row), n)
		}
		w[r] = append([]float64(nil), row...)
	}
	return Kernel{Weights: w}, nil
}

func (k Kernel) Size() int {
	return len(k.Weights)
}

func (k Kernel) Radius() int {
	return len(k.Weights) / 2
}

// Rotate turns the kernel clockwise by quarter turns.
func (k Kernel) Rotate(times int) Kernel {
	out := k
	for t := 0; t < ((times%4)+4)%4; t++ {
		n := out.Size()
		w := make([][]float64, n)
		for r := range w {
			w[r] = make([]float64, n)
			for c := range w[r] {
				w[r][c] = out.Weights[n-1-c][r]
			}
		}
		out = Kernel{Weights: w}
	}
	return out
}

func (k Kernel) Count() int {
	n := 0
	for _, row := range k.Weights {
		for _, v := range row {
			if v != 0 {
				n++
			}
		}
	}
	return n
}
