package output

import (
	"context"

	"tracking-cog/internal/domain/entity"
)

type StepPort interface {
	Definition() entity.StepDefinition
	Execute(ctx context.Context, sess Session, data map[string]any) (*entity.StepResponse, error)
}

type StepRegistry interface {
	Register(step StepPort)
	Get(stepID string) (StepPort, bool)
	All() []StepPort
	Definitions() []entity.StepDefinition
}
