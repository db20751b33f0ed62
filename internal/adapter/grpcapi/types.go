package grpcapi

import "tracking-cog/internal/domain/entity"

type RunStepRequest struct {
	Step *entity.StepRequest `json:"step"`
}

type RunStepResponse struct {
	Response *entity.StepResponse `json:"response"`
}
