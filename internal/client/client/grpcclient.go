// Package client is a gRPC client for the tokenauth Identity service. It
// keeps the current token pair and rotates it transparently when a
// protected call reports an expired access token.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	pb "github.com/dmitrijs2005/tokenauth/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	conn   *grpc.ClientConn
	client pb.IdentityClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewGRPCClient prepares a connection to endpoint. Extra dial options are
// appended to the defaults (insecure transport, token interceptor).
func NewGRPCClient(endpoint string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = pb.NewIdentityClient(conn)
	return c, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// accessTokenInterceptor attaches the access token to protected calls and,
// when the server reports it expired, rotates the pair once and retries.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if method != pb.MeFullMethodName {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, _ := s.Tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) {
		return err
	}

	if rerr := s.Refresh(ctx); rerr != nil {
		return rerr
	}

	access, _ = s.Tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// Tokens returns the current access and refresh tokens.
func (s *GRPCClient) Tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(resp *pb.AuthResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = resp.Token
	s.refreshToken = resp.RefreshToken
}

func (s *GRPCClient) handleAuth(resp *pb.AuthResponse, err error) error {
	if err != nil {
		return s.mapError(err)
	}
	if !resp.Success {
		return &AuthError{Reason: resp.Reason, Messages: resp.Errors}
	}
	s.setTokens(resp)
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, email, password string) error {
	resp, err := s.client.Register(ctx, &pb.RegisterRequest{Email: email, Password: password})
	return s.handleAuth(resp, err)
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) error {
	resp, err := s.client.Login(ctx, &pb.LoginRequest{Email: email, Password: password})
	return s.handleAuth(resp, err)
}

// Refresh rotates the stored token pair. A rejected rotation clears the
// pair; the user has to log in again.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	access, refresh := s.Tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}

	resp, err := s.client.Refresh(ctx, &pb.RefreshRequest{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		return s.mapError(err)
	}
	if !resp.Success {
		// the server only rotates expired tokens, the current pair is still good
		if resp.Reason == "token_not_yet_expired" {
			return &AuthError{Reason: resp.Reason, Messages: resp.Errors}
		}
		s.setTokens(&pb.AuthResponse{})
		return fmt.Errorf("%w: %v", ErrSessionExpired, &AuthError{Reason: resp.Reason, Messages: resp.Errors})
	}
	s.setTokens(resp)
	return nil
}

func (s *GRPCClient) Me(ctx context.Context) (*pb.MeResponse, error) {
	if access, _ := s.Tokens(); access == "" {
		return nil, ErrNotLoggedIn
	}
	resp, err := s.client.Me(ctx, &pb.MeRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
