package storev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StoreServiceClient is the client API of the store service.
type StoreServiceClient interface {
	GetAlarms(ctx context.Context, in *GetAlarmsRequest, opts ...grpc.CallOption) (*AlarmsResponse, error)
	SetAlarms(ctx context.Context, in *SetAlarmsRequest, opts ...grpc.CallOption) (*SetAlarmsResponse, error)
	ListAlarms(ctx context.Context, in *ListAlarmsRequest, opts ...grpc.CallOption) (*ListAlarmsResponse, error)
	GetTrigger(ctx context.Context, in *GetTriggerRequest, opts ...grpc.CallOption) (*TriggerResponse, error)
	SetTrigger(ctx context.Context, in *SetTriggerRequest, opts ...grpc.CallOption) (*SetTriggerResponse, error)
	ListTriggers(
		ctx context.Context,
		in *ListTriggersRequest,
		opts ...grpc.CallOption,
	) (*ListTriggersResponse, error)
	WatchTrigger(
		ctx context.Context,
		in *WatchTriggerRequest,
		opts ...grpc.CallOption,
	) (grpc.ServerStreamingClient[TriggerEvent], error)
}

type storeServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewStoreServiceClient returns a client over cc.
func NewStoreServiceClient(cc grpc.ClientConnInterface) StoreServiceClient {
	return &storeServiceClient{cc: cc}
}

func (c *storeServiceClient) GetAlarms(
	ctx context.Context,
	in *GetAlarmsRequest,
	opts ...grpc.CallOption,
) (*AlarmsResponse, error) {
	return invoke[AlarmsResponse](ctx, c.cc, GetAlarmsMethod, in, opts)
}

func (c *storeServiceClient) SetAlarms(
	ctx context.Context,
	in *SetAlarmsRequest,
	opts ...grpc.CallOption,
) (*SetAlarmsResponse, error) {
	return invoke[SetAlarmsResponse](ctx, c.cc, SetAlarmsMethod, in, opts)
}

func (c *storeServiceClient) ListAlarms(
	ctx context.Context,
	in *ListAlarmsRequest,
	opts ...grpc.CallOption,
) (*ListAlarmsResponse, error) {
	return invoke[ListAlarmsResponse](ctx, c.cc, ListAlarmsMethod, in, opts)
}

func (c *storeServiceClient) GetTrigger(
	ctx context.Context,
	in *GetTriggerRequest,
	opts ...grpc.CallOption,
) (*TriggerResponse, error) {
	return invoke[TriggerResponse](ctx, c.cc, GetTriggerMethod, in, opts)
}

func (c *storeServiceClient) SetTrigger(
	ctx context.Context,
	in *SetTriggerRequest,
	opts ...grpc.CallOption,
) (*SetTriggerResponse, error) {
	return invoke[SetTriggerResponse](ctx, c.cc, SetTriggerMethod, in, opts)
}

func (c *storeServiceClient) ListTriggers(
	ctx context.Context,
	in *ListTriggersRequest,
	opts ...grpc.CallOption,
) (*ListTriggersResponse, error) {
	return invoke[ListTriggersResponse](ctx, c.cc, ListTriggersMethod, in, opts)
}

func (c *storeServiceClient) WatchTrigger(
	ctx context.Context,
	in *WatchTriggerRequest,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[TriggerEvent], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchTriggerMethod, opts...)
	if err != nil {
		return nil, err
	}

	if err = stream.SendMsg(in.toWire()); err != nil {
		return nil, err
	}

	if err = stream.CloseSend(); err != nil {
		return nil, err
	}

	return &triggerEventClient{ClientStream: stream}, nil
}

// triggerEventClient decodes the events of a WatchTrigger stream.
type triggerEventClient struct {
	grpc.ClientStream
}

func (c *triggerEventClient) Recv() (*TriggerEvent, error) {
	wire := new(TriggerEvent).newWire()
	if err := c.ClientStream.RecvMsg(wire); err != nil {
		return nil, err
	}

	event, err := decode[TriggerEvent](wire)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return event, nil
}

func invoke[Resp any, PResp wirePointer[Resp]](
	ctx context.Context,
	cc grpc.ClientConnInterface,
	method string,
	in wireMessage,
	opts []grpc.CallOption,
) (*Resp, error) {
	reply := PResp(new(Resp)).newWire()
	if err := cc.Invoke(ctx, method, in.toWire(), reply, opts...); err != nil {
		return nil, err
	}

	out, err := decode[Resp, PResp](reply)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return out, nil
}
