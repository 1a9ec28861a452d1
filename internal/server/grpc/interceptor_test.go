package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/logging"
	pb "github.com/dmitrijs2005/tokenauth/internal/proto"
	"github.com/dmitrijs2005/tokenauth/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

const testSecret = "super-secret"

func newCodec(t *testing.T) *auth.Codec {
	t.Helper()
	c, err := auth.NewCodec([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return c
}

// helper to build server
func newTestServer(t *testing.T, opts ...Option) *GRPCServer {
	t.Helper()
	return NewGRPCServer("", nopLogger{}, nil, newCodec(t), opts...)
}

func mintToken(t *testing.T, email string, extra map[string]string, lifetime time.Duration) string {
	t.Helper()
	claims := auth.Claims{Email: email, UserID: "user-123", Extra: extra}
	claims.ID = "jti-1"
	token, err := newCodec(t).Mint(email, claims, lifetime)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}
	return token
}

func ctxWithToken(token string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

var meInfo = &grpc.UnaryServerInfo{FullMethod: pb.MeFullMethodName}

func TestInterceptor_PublicMethod_AllowsWithoutToken(t *testing.T) {
	s := newTestServer(t)

	info := &grpc.UnaryServerInfo{FullMethod: pb.LoginFullMethodName}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_Protected_MissingToken(t *testing.T) {
	s := newTestServer(t)

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, meInfo, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_Protected_RejectedTokens(t *testing.T) {
	s := newTestServer(t)

	other, err := auth.NewCodec([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	forged, err := other.Mint("a@x.com", auth.Claims{}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		token string
		msg   string
	}{
		{name: "garbage", token: "not-a-valid-jwt", msg: "invalid token"},
		{name: "wrong key", token: forged, msg: "invalid token"},
		{name: "expired", token: mintToken(t, "a@x.com", map[string]string{"tags.view": "true"}, -time.Minute), msg: "token expired"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				t.Fatal("handler should not be called for a rejected token")
				return nil, nil
			}
			_, err := s.accessTokenInterceptor(ctxWithToken(tc.token), nil, meInfo, h)
			if status.Code(err) != codes.Unauthenticated {
				t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
			}
			if got := status.Convert(err).Message(); got != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, got)
			}
		})
	}
}

func TestInterceptor_Protected_MissingClaimForbidden(t *testing.T) {
	s := newTestServer(t)

	token := mintToken(t, "a@x.com", nil, time.Hour)
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called without the required claim")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(ctxWithToken(token), nil, meInfo, h)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", status.Code(err))
	}
}

func TestInterceptor_Protected_ValidToken_SetsClaims(t *testing.T) {
	s := newTestServer(t)

	token := mintToken(t, "a@x.com", map[string]string{"tags.view": "true"}, time.Hour)

	var got *auth.Claims
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, _ = ClaimsFromContext(ctx)
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(ctxWithToken(token), nil, meInfo, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if got == nil || got.UserID != "user-123" || got.Email != "a@x.com" {
		t.Fatalf("claims not propagated in context: %+v", got)
	}
}

func TestInterceptor_EmailDomainPolicy(t *testing.T) {
	s := newTestServer(t, WithPolicies(pb.MeFullMethodName, RequireEmailDomain("apei.com")))
	ok := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }
	extra := map[string]string{"tags.view": "true"}

	_, err := s.accessTokenInterceptor(ctxWithToken(mintToken(t, "bob@apei.com", extra, time.Hour)), nil, meInfo, ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = s.accessTokenInterceptor(ctxWithToken(mintToken(t, "bob@example.com", extra, time.Hour)), nil, meInfo, ok)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", status.Code(err))
	}
}

func TestPolicies(t *testing.T) {
	c := &auth.Claims{Email: "Bob@Apei.COM", Extra: map[string]string{"tags.view": "true"}}

	if err := RequireClaim("tags.view", "true")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RequireClaim("tags.view", "false")(c); err == nil {
		t.Fatal("expected error for wrong claim value")
	}
	if err := RequireClaim("admin", "true")(c); err == nil {
		t.Fatal("expected error for missing claim")
	}
	if err := RequireEmailDomain("apei.com")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RequireEmailDomain("pei.com")(c); err == nil {
		t.Fatal("expected error for a suffix that is not the domain")
	}
}
