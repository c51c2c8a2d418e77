package storev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "silentalarm.store.v1.StoreService"

// Full method names.
const (
	GetAlarmsMethod    = "/" + ServiceName + "/GetAlarms"
	SetAlarmsMethod    = "/" + ServiceName + "/SetAlarms"
	ListAlarmsMethod   = "/" + ServiceName + "/ListAlarms"
	GetTriggerMethod   = "/" + ServiceName + "/GetTrigger"
	SetTriggerMethod   = "/" + ServiceName + "/SetTrigger"
	ListTriggersMethod = "/" + ServiceName + "/ListTriggers"
	WatchTriggerMethod = "/" + ServiceName + "/WatchTrigger"
)

// StoreServiceServer is the server API of the store service.
type StoreServiceServer interface {
	GetAlarms(context.Context, *GetAlarmsRequest) (*AlarmsResponse, error)
	SetAlarms(context.Context, *SetAlarmsRequest) (*SetAlarmsResponse, error)
	ListAlarms(context.Context, *ListAlarmsRequest) (*ListAlarmsResponse, error)
	GetTrigger(context.Context, *GetTriggerRequest) (*TriggerResponse, error)
	SetTrigger(context.Context, *SetTriggerRequest) (*SetTriggerResponse, error)
	ListTriggers(context.Context, *ListTriggersRequest) (*ListTriggersResponse, error)
	WatchTrigger(*WatchTriggerRequest, grpc.ServerStreamingServer[TriggerEvent]) error
}

// UnimplementedStoreServiceServer answers every method with codes.Unimplemented.
// Embed it to stay forward compatible with methods added later.
type UnimplementedStoreServiceServer struct{}

func (UnimplementedStoreServiceServer) GetAlarms(context.Context, *GetAlarmsRequest) (*AlarmsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAlarms not implemented")
}

func (UnimplementedStoreServiceServer) SetAlarms(context.Context, *SetAlarmsRequest) (*SetAlarmsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetAlarms not implemented")
}

func (UnimplementedStoreServiceServer) ListAlarms(context.Context, *ListAlarmsRequest) (*ListAlarmsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAlarms not implemented")
}

func (UnimplementedStoreServiceServer) GetTrigger(context.Context, *GetTriggerRequest) (*TriggerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTrigger not implemented")
}

func (UnimplementedStoreServiceServer) SetTrigger(context.Context, *SetTriggerRequest) (*SetTriggerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetTrigger not implemented")
}

func (UnimplementedStoreServiceServer) ListTriggers(
	context.Context,
	*ListTriggersRequest,
) (*ListTriggersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListTriggers not implemented")
}

func (UnimplementedStoreServiceServer) WatchTrigger(
	*WatchTriggerRequest,
	grpc.ServerStreamingServer[TriggerEvent],
) error {
	return status.Error(codes.Unimplemented, "method WatchTrigger not implemented")
}

// RegisterStoreServiceServer registers srv on the provided gRPC server.
func RegisterStoreServiceServer(registrar grpc.ServiceRegistrar, srv StoreServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the store service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StoreServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAlarms", Handler: unaryHandler(GetAlarmsMethod, StoreServiceServer.GetAlarms)},
		{MethodName: "SetAlarms", Handler: unaryHandler(SetAlarmsMethod, StoreServiceServer.SetAlarms)},
		{MethodName: "ListAlarms", Handler: unaryHandler(ListAlarmsMethod, StoreServiceServer.ListAlarms)},
		{MethodName: "GetTrigger", Handler: unaryHandler(GetTriggerMethod, StoreServiceServer.GetTrigger)},
		{MethodName: "SetTrigger", Handler: unaryHandler(SetTriggerMethod, StoreServiceServer.SetTrigger)},
		{MethodName: "ListTriggers", Handler: unaryHandler(ListTriggersMethod, StoreServiceServer.ListTriggers)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchTrigger",
			Handler:       watchTriggerHandler,
			ServerStreams: true,
		},
	},
	Metadata: "silentalarm/store/v1/store",
}

// unaryHandler adapts a typed server method to grpc.MethodHandler. Requests
// that do not decode into the typed message are rejected with InvalidArgument.
func unaryHandler[Req, Resp any, PReq wirePointer[Req], PResp wirePointer[Resp]](
	fullMethod string,
	call func(StoreServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		wire := PReq(new(Req)).newWire()
		if err := dec(wire); err != nil {
			return nil, err
		}

		in, err := decode[Req, PReq](wire)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		server, _ := srv.(StoreServiceServer)

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(*Req)

			resp, callErr := call(server, ctx, typed)
			if callErr != nil {
				return nil, callErr
			}

			return PResp(resp).toWire(), nil
		}

		if interceptor == nil {
			return handler(ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		return interceptor(ctx, in, info, handler)
	}
}

// triggerEventServer encodes the events of a WatchTrigger stream.
type triggerEventServer struct {
	grpc.ServerStream
}

func (s *triggerEventServer) Send(event *TriggerEvent) error {
	return s.ServerStream.SendMsg(event.toWire())
}

func watchTriggerHandler(srv any, stream grpc.ServerStream) error {
	wire := new(WatchTriggerRequest).newWire()
	if err := stream.RecvMsg(wire); err != nil {
		return err
	}

	in, err := decode[WatchTriggerRequest](wire)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	server, _ := srv.(StoreServiceServer)

	return server.WatchTrigger(in, &triggerEventServer{ServerStream: stream})
}
