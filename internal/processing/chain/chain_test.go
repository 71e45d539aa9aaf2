package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrafloods/internal/raster"
)

type addStep struct {
	name  string
	delta float64
	err   error
}

func (s *addStep) Name() string { return s.name }

func (s *addStep) Apply(ctx context.Context, input *raster.Image) (*raster.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return raster.Apply(input, func(v float64) float64 { return v + s.delta }), nil
}

var grid = raster.NewGeoTransform(0, 0, 1, 1)

func TestExecuteRunsStepsInOrder(t *testing.T) {
	pc := NewProcessingChain(&addStep{name: "one", delta: 1})
	pc.AddStep(&addStep{name: "two", delta: 2})

	out, err := pc.Execute(context.Background(), raster.Constant(2, 2, grid, "v", 1))
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.Bands[0].Data[3])
	assert.Equal(t, []string{"one", "two"}, pc.GetStepNames())
	assert.Equal(t, 2, pc.StepCount())
}

func TestExecuteWrapsStepError(t *testing.T) {
	boom := errors.New("boom")
	pc := NewProcessingChain(&addStep{name: "broken", err: boom})

	_, err := pc.Execute(context.Background(), raster.Constant(1, 1, grid, "v", 0))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestExecuteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessingChain(&addStep{name: "one"}).Execute(ctx, raster.Constant(1, 1, grid, "v", 0))
	assert.ErrorIs(t, err, context.Canceled)
}
