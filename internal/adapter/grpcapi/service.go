package grpcapi

import (
	"context"
	"net"
	"time"

	"tracking-cog/internal/application/port/input"
	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const serviceName = "cog.CogService"

// CogServiceServer is the RPC surface consumed by the orchestrator.
type CogServiceServer interface {
	GetManifest(context.Context, *emptypb.Empty) (*entity.CogManifest, error)
	RunStep(context.Context, *RunStepRequest) (*RunStepResponse, error)
	RunSteps(input.StepStream) error
}

type cogService struct {
	runner input.StepRunner
}

func NewService(runner input.StepRunner) CogServiceServer {
	return &cogService{runner: runner}
}

func (s *cogService) GetManifest(context.Context, *emptypb.Empty) (*entity.CogManifest, error) {
	return s.runner.Manifest(), nil
}

func (s *cogService) RunStep(ctx context.Context, req *RunStepRequest) (*RunStepResponse, error) {
	if req == nil || req.Step == nil {
		return nil, status.Error(codes.InvalidArgument, "step is required")
	}
	return &RunStepResponse{Response: s.runner.Run(ctx, req.Step)}, nil
}

func (s *cogService) RunSteps(stream input.StepStream) error {
	return s.runner.Serve(stream)
}

// Server hosts the cog service on a gRPC server forced to the JSON codec.
type Server struct {
	server *grpc.Server
	log    output.LoggerPort
}

func NewServer(runner input.StepRunner, log output.LoggerPort) *Server {
	s := &Server{log: log}
	s.server = grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(s.logUnary),
		grpc.ChainStreamInterceptor(s.logStream),
	)
	RegisterCogServiceServer(s.server, NewService(runner))
	return s
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server listening", "addr", lis.Addr().String())
	return s.server.Serve(lis)
}

// Shutdown waits for open streams to drain until ctx expires, then closes
// them forcibly.
func (s *Server) Shutdown(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.log.Warn("grpc graceful stop timed out, forcing")
		s.server.Stop()
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("grpc call", "method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds(), "code", status.Code(err).String())
	return resp, err
}

func (s *Server) logStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.log.Info("grpc stream closed", "method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds(), "code", status.Code(err).String())
	return err
}

// RegisterCogServiceServer registers service handlers.
func RegisterCogServiceServer(s grpc.ServiceRegistrar, srv CogServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// stepStream adapts a raw server stream to the dispatcher's stream.
type stepStream struct {
	grpc.ServerStream
}

func (s *stepStream) Recv() (*entity.StepRequest, error) {
	in := new(RunStepRequest)
	if err := s.RecvMsg(in); err != nil {
		return nil, err
	}
	if in.Step == nil {
		return &entity.StepRequest{}, nil
	}
	return in.Step, nil
}

func (s *stepStream) Send(resp *entity.StepResponse) error {
	return s.SendMsg(&RunStepResponse{Response: resp})
}

func getManifestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CogServiceServer).GetManifest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/GetManifest",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CogServiceServer).GetManifest(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func runStepHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RunStepRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CogServiceServer).RunStep(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/RunStep",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CogServiceServer).RunStep(ctx, req.(*RunStepRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func runStepsHandler(srv any, stream grpc.ServerStream) error {
	return srv.(CogServiceServer).RunSteps(&stepStream{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetManifest", Handler: getManifestHandler},
		{MethodName: "RunStep", Handler: runStepHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "RunSteps",
			Handler:       runStepsHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "cog.proto",
}
