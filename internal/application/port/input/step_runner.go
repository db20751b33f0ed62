package input

import (
	"context"

	"tracking-cog/internal/domain/entity"
)

// StepStream is the server side of a duplex step stream. Recv returns io.EOF
// once the client has half-closed.
type StepStream interface {
	Context() context.Context
	Recv() (*entity.StepRequest, error)
	Send(resp *entity.StepResponse) error
}

type StepRunner interface {
	Run(ctx context.Context, req *entity.StepRequest) *entity.StepResponse
	Serve(stream StepStream) error
	Manifest() *entity.CogManifest
}
