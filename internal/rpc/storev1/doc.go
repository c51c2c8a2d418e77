// Package storev1 describes the silentalarm.store.v1.StoreService gRPC API.
//
// The typed messages are encoded as protobuf well-known types: device ids as
// wrapperspb.StringValue, empty requests and replies as emptypb.Empty and
// everything else as structpb.Struct. They go through gRPC's default proto
// codec, so the service needs no generated code.
package storev1
