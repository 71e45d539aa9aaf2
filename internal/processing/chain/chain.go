package chain

import (
	"context"
	"fmt"

	"hydrafloods/internal/raster"
)

type ProcessingStep interface {
	Apply(ctx context.Context, input *raster.Image) (*raster.Image, error)
	Name() string
}

type ProcessingChain struct {
	steps []ProcessingStep
}

func NewProcessingChain(steps ...ProcessingStep) *ProcessingChain {
	return &ProcessingChain{
		steps: steps,
	}
}

func (pc *ProcessingChain) Execute(ctx context.Context, input *raster.Image) (*raster.Image, error) {
	current := input

	for _, step := range pc.steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := step.Apply(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}
		current = result
	}

	return current, nil
}

func (pc *ProcessingChain) AddStep(step ProcessingStep) {
	pc.steps = append(pc.steps, step)
}

func (pc *ProcessingChain) StepCount() int {
	return len(pc.steps)
}

func (pc *ProcessingChain) GetStepNames() []string {
	names := make([]string, len(pc.steps))
	for i, step := range pc.steps {
		names[i] = step.Name()
	}
	return names
}
