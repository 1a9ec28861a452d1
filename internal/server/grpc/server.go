package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tokenauth/internal/logging"
	pb "github.com/dmitrijs2005/tokenauth/internal/proto"
	"github.com/dmitrijs2005/tokenauth/internal/server/auth"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
	"google.golang.org/grpc"
)

// IdentityService is the authentication core behind the public methods.
type IdentityService interface {
	Register(ctx context.Context, email, password string) (*models.AuthResult, error)
	Login(ctx context.Context, email, password string) (*models.AuthResult, error)
	RefreshToken(ctx context.Context, accessToken, refreshToken string) (*models.AuthResult, error)
}

// TokenValidator checks bearer tokens on protected methods.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type GRPCServer struct {
	pb.UnimplementedIdentityServer
	address   string
	identity  IdentityService
	validator TokenValidator
	logger    logging.Logger
	protected map[string][]Policy
}

type Option func(*GRPCServer)

// WithPolicies adds authorization policies to a protected method. The method
// becomes protected if it was not already.
func WithPolicies(fullMethod string, policies ...Policy) Option {
	return func(s *GRPCServer) {
		s.protected[fullMethod] = append(s.protected[fullMethod], policies...)
	}
}

func NewGRPCServer(address string, l logging.Logger, identity IdentityService, validator TokenValidator, opts ...Option) *GRPCServer {
	s := &GRPCServer{
		address:   address,
		logger:    l.With("module", "grpc_server"),
		identity:  identity,
		validator: validator,
		protected: map[string][]Policy{
			pb.MeFullMethodName: {RequireClaim("tags.view", "true")},
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(pb.Codec()),
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
	)
	pb.RegisterIdentityServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
