package control

import (
	"context"

	"google.golang.org/grpc"
)

// Server is implemented by the Workload process and registered against a
// *grpc.Server with RegisterAll. Each method corresponds to one RPC named in
// spec §4.6; grouping them onto six logical interfaces (instead of six
// separate Go types) keeps one implementation in sync with itself, while the
// six ServiceDescs still appear on the wire as distinct gRPC services.
type Server interface {
	ChainControlServer
	StateQueryServer
	ContractControlServer
	StakingControlServer
	SystemControlServer
	WorkloadControlServer
}

type ChainControlServer interface {
	SubmitBlock(context.Context, *SubmitBlockRequest) (*SubmitBlockResponse, error)
	ChainHeight(context.Context, *ChainHeightRequest) (*ChainHeightResponse, error)
}

type StateQueryServer interface {
	QueryRawState(context.Context, *QueryRawStateRequest) (*QueryRawStateResponse, error)
}

type ContractControlServer interface {
	DeployService(context.Context, *DeployServiceRequest) (*DeployServiceResponse, error)
}

type StakingControlServer interface {
	ScheduleValidators(context.Context, *ScheduleValidatorsRequest) (*ScheduleValidatorsResponse, error)
}

type SystemControlServer interface {
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
}

type WorkloadControlServer interface {
	ExecuteJob(context.Context, *ExecuteJobRequest) (*ExecuteJobResponse, error)
}

// unaryHandler adapts one Server method into the shape grpc.ServiceDesc
// expects, decoding the request with the codec negotiated for the
// connection (always jsonCodec in this repo) and running it through any
// registered interceptor (auth, logging) before the real call.
func unaryHandler[Req any, Resp any](call func(Server, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Server), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, r any) (any, error) {
			return call(srv.(Server), ctx, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var chainControlDesc = grpc.ServiceDesc{
	ServiceName: "ioi.kernel.control.ChainControl",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitBlock", Handler: unaryHandler(func(s Server, ctx context.Context, r *SubmitBlockRequest) (*SubmitBlockResponse, error) {
			return s.SubmitBlock(ctx, r)
		})},
		{MethodName: "ChainHeight", Handler: unaryHandler(func(s Server, ctx context.Context, r *ChainHeightRequest) (*ChainHeightResponse, error) {
			return s.ChainHeight(ctx, r)
		})},
	},
}

var stateQueryDesc = grpc.ServiceDesc{
	ServiceName: "ioi.kernel.control.StateQuery",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QueryRawState", Handler: unaryHandler(func(s Server, ctx context.Context, r *QueryRawStateRequest) (*QueryRawStateResponse, error) {
			return s.QueryRawState(ctx, r)
		})},
	},
}

var contractControlDesc = grpc.ServiceDesc{
	ServiceName: "ioi.kernel.control.ContractControl",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DeployService", Handler: unaryHandler(func(s Server, ctx context.Context, r *DeployServiceRequest) (*DeployServiceResponse, error) {
			return s.DeployService(ctx, r)
		})},
	},
}

var stakingControlDesc = grpc.ServiceDesc{
	ServiceName: "ioi.kernel.control.StakingControl",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ScheduleValidators", Handler: unaryHandler(func(s Server, ctx context.Context, r *ScheduleValidatorsRequest) (*ScheduleValidatorsResponse, error) {
			return s.ScheduleValidators(ctx, r)
		})},
	},
}

var systemControlDesc = grpc.ServiceDesc{
	ServiceName: "ioi.kernel.control.SystemControl",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: unaryHandler(func(s Server, ctx context.Context, r *HealthRequest) (*HealthResponse, error) {
			return s.Health(ctx, r)
		})},
		{MethodName: "Shutdown", Handler: unaryHandler(func(s Server, ctx context.Context, r *ShutdownRequest) (*ShutdownResponse, error) {
			return s.Shutdown(ctx, r)
		})},
	},
}

var workloadControlDesc = grpc.ServiceDesc{
	ServiceName: "ioi.kernel.control.WorkloadControl",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteJob", Handler: unaryHandler(func(s Server, ctx context.Context, r *ExecuteJobRequest) (*ExecuteJobResponse, error) {
			return s.ExecuteJob(ctx, r)
		})},
	},
}

// RegisterAll registers all six control-plane services against srv.
func RegisterAll(grpcServer *grpc.Server, srv Server) {
	grpcServer.RegisterService(&chainControlDesc, srv)
	grpcServer.RegisterService(&stateQueryDesc, srv)
	grpcServer.RegisterService(&contractControlDesc, srv)
	grpcServer.RegisterService(&stakingControlDesc, srv)
	grpcServer.RegisterService(&systemControlDesc, srv)
	grpcServer.RegisterService(&workloadControlDesc, srv)
}
