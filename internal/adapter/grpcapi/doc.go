// Package grpcapi exposes the step runner as the cog.CogService gRPC service.
// Messages travel as JSON through a registered codec, so the service is
// described by hand instead of generated stubs.
package grpcapi
