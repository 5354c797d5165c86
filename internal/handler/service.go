// internal/handler/service.go
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "policy.v1.PolicyRunner"

const (
	actMethod      = "/" + ServiceName + "/Act"
	describeMethod = "/" + ServiceName + "/Describe"
	getStateMethod = "/" + ServiceName + "/GetState"
)

// PolicyRunnerServer is the server API. Messages are google.protobuf.Struct
// so clients in any language can call it without generated stubs.
//
// Act request:       {agent_id?: string, obs: {key: [number]}, state_ins?: number, reset?: bool}
// Act response:      {output: [number], state_outs: [number], output_kind: string, output_size: number}
// Describe response: {model: string, output_size: number, inputs: [string], compute: string}
// GetState request:  {agent_id: string}
// GetState response: {agent_id: string, found: bool, state_outs: [number]}
type PolicyRunnerServer interface {
	Act(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPolicyRunnerServer registers srv with s.
func RegisterPolicyRunnerServer(s grpc.ServiceRegistrar, srv PolicyRunnerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// methodHandler matches grpc.MethodDesc.Handler.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

func unaryHandler(method string, call func(PolicyRunnerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(PolicyRunnerServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the PolicyRunner service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyRunnerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Act", Handler: unaryHandler(actMethod, PolicyRunnerServer.Act)},
		{MethodName: "Describe", Handler: unaryHandler(describeMethod, PolicyRunnerServer.Describe)},
		{MethodName: "GetState", Handler: unaryHandler(getStateMethod, PolicyRunnerServer.GetState)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "policy/v1/policy_runner.proto",
}

// Client calls a PolicyRunner server.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a Client on cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Act runs one inference.
func (c *Client) Act(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, actMethod, in, opts...)
}

// Describe returns the loaded model's description.
func (c *Client) Describe(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, describeMethod, &structpb.Struct{}, opts...)
}

// GetState returns the stored recurrent state of an agent.
func (c *Client) GetState(ctx context.Context, agentID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"agent_id": agentID})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, getStateMethod, in, opts...)
}
