package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "tokenauth.v1.Identity"

const (
	RegisterFullMethodName = "/" + ServiceName + "/Register"
	LoginFullMethodName    = "/" + ServiceName + "/Login"
	RefreshFullMethodName  = "/" + ServiceName + "/Refresh"
	MeFullMethodName       = "/" + ServiceName + "/Me"
)

// IdentityServer is the server API of the Identity service.
type IdentityServer interface {
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	Refresh(context.Context, *RefreshRequest) (*AuthResponse, error)
	Me(context.Context, *MeRequest) (*MeResponse, error)
}

// UnimplementedIdentityServer can be embedded to get Unimplemented errors
// for methods a server does not provide.
type UnimplementedIdentityServer struct{}

func (UnimplementedIdentityServer) Register(context.Context, *RegisterRequest) (*AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Register not implemented")
}

func (UnimplementedIdentityServer) Login(context.Context, *LoginRequest) (*AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}

func (UnimplementedIdentityServer) Refresh(context.Context, *RefreshRequest) (*AuthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
}

func (UnimplementedIdentityServer) Me(context.Context, *MeRequest) (*MeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Me not implemented")
}

func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&IdentityServiceDesc, srv)
}

// unaryHandler adapts a typed server method to grpc's method handler shape.
func unaryHandler[Req any, Resp any](fullMethod string, call func(IdentityServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(IdentityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(IdentityServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var IdentityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler:    unaryHandler(RegisterFullMethodName, IdentityServer.Register),
		},
		{
			MethodName: "Login",
			Handler:    unaryHandler(LoginFullMethodName, IdentityServer.Login),
		},
		{
			MethodName: "Refresh",
			Handler:    unaryHandler(RefreshFullMethodName, IdentityServer.Refresh),
		},
		{
			MethodName: "Me",
			Handler:    unaryHandler(MeFullMethodName, IdentityServer.Me),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tokenauth/v1/identity",
}

// IdentityClient is the client API of the Identity service.
type IdentityClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Me(ctx context.Context, in *MeRequest, opts ...grpc.CallOption) (*MeResponse, error)
}

type identityClient struct {
	cc grpc.ClientConnInterface
}

func NewIdentityClient(cc grpc.ClientConnInterface) IdentityClient {
	return &identityClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *identityClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, RegisterFullMethodName, in, opts)
}

func (c *identityClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, LoginFullMethodName, in, opts)
}

func (c *identityClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, RefreshFullMethodName, in, opts)
}

func (c *identityClient) Me(ctx context.Context, in *MeRequest, opts ...grpc.CallOption) (*MeResponse, error) {
	return invoke[MeResponse](ctx, c.cc, MeFullMethodName, in, opts)
}
