package identity

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server is implemented by the identity service.
type Server interface {
	SignUp(ctx context.Context, creds Credentials) (Grant, error)
	SignIn(ctx context.Context, creds Credentials) (Grant, error)
	// Whoami resolves the caller from the authenticated context.
	Whoami(ctx context.Context) (Grant, error)
}

// RegisterServer registers srv under ServiceName.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignUp", Handler: credentialsHandler(MethodSignUp, Server.SignUp)},
		{MethodName: "SignIn", Handler: credentialsHandler(MethodSignIn, Server.SignIn)},
		{MethodName: "Whoami", Handler: whoamiHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "monochat/identity/v1/identity.proto",
}

// credentialsHandler adapts a Server method taking Credentials to a unary
// handler, running interceptors on the raw Struct request.
func credentialsHandler(fullMethod string, call func(Server, context.Context, Credentials) (Grant, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			g, err := call(srv.(Server), ctx, CredentialsFromStruct(req.(*structpb.Struct)))
			if err != nil {
				return nil, err
			}
			return g.Struct(), nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
	}
}

func whoamiHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ interface{}) (interface{}, error) {
		g, err := srv.(Server).Whoami(ctx)
		if err != nil {
			return nil, err
		}
		return g.Struct(), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodWhoami}, handler)
}
