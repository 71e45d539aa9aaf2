package filters

import "hydrafloods/internal/processing/chain"

type EdgeSettings struct {
	Threshold       float64
	Sigma           float64
	Below           float64
	ConnectedPixels int
	MinLength       int
	DilateRadius    int
}

// NewEdgeCorridor builds the chain that turns a backscatter image into a
// corridor of pixels around long, well connected edges.
func NewEdgeCorridor(s EdgeSettings) *chain.ProcessingChain {
	return chain.NewProcessingChain(
		NewGaussianFilter(s.Sigma),
		NewCannyDetector(s.Threshold),
		&EdgeLengthFilter{Below: s.Below, MaxSize: s.ConnectedPixels, MinLength: s.MinLength},
		&DilateStep{Radius: s.DilateRadius},
	)
}
