package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/logging"
	pb "github.com/dmitrijs2005/tokenauth/internal/proto"
	"github.com/dmitrijs2005/tokenauth/internal/server/directory"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokenauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// startServer serves s over an in-memory listener and returns a client.
func startServer(t *testing.T, s *GRPCServer) pb.IdentityClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return pb.NewIdentityClient(conn)
}

func newIdentityStack(t *testing.T, accessLifetime time.Duration) *services.IdentityService {
	t.Helper()
	dir := directory.New(users.NewMemoryRepository(), directory.WithBcryptCost(bcrypt.MinCost))
	return services.NewIdentityService(dir, refreshtokens.NewMemoryRepository(), newCodec(t), logging.Discard(), services.Options{
		AccessTokenLifetime: accessLifetime,
		DefaultClaims:       services.DefaultClaims(),
	})
}

func TestEndToEnd_RegisterLoginMe(t *testing.T) {
	s := NewGRPCServer("", nopLogger{}, newIdentityStack(t, time.Hour), newCodec(t))
	client := startServer(t, s)
	ctx := context.Background()

	reg, err := client.Register(ctx, &pb.RegisterRequest{Email: "a@x.com", Password: "Pw1!"})
	require.NoError(t, err)
	require.True(t, reg.Success, reg.Errors)
	assert.NotEmpty(t, reg.Token)
	assert.NotEmpty(t, reg.RefreshToken)

	dup, err := client.Register(ctx, &pb.RegisterRequest{Email: "a@x.com", Password: "Pw1!"})
	require.NoError(t, err)
	assert.False(t, dup.Success)
	assert.Equal(t, string(models.ReasonUserAlreadyExists), dup.Reason)
	assert.Equal(t, []string{"User with this email address already exists"}, dup.Errors)

	login, err := client.Login(ctx, &pb.LoginRequest{Email: "a@x.com", Password: "Pw1!"})
	require.NoError(t, err)
	require.True(t, login.Success)
	assert.Equal(t, reg.UserID, login.UserID)

	refresh, err := client.Refresh(ctx, &pb.RefreshRequest{AccessToken: login.Token, RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.False(t, refresh.Success)
	assert.Equal(t, string(models.ReasonTokenNotYetExpired), refresh.Reason)

	_, err = client.Me(ctx, &pb.MeRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	authed := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, login.Token)
	me, err := client.Me(authed, &pb.MeRequest{})
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, me.UserID)
	assert.Equal(t, "a@x.com", me.Email)
	assert.Equal(t, map[string]string{"tags.view": "true"}, me.Claims)
	assert.Greater(t, me.ExpiresAt, time.Now().Unix())
}

func TestEndToEnd_RefreshRotation(t *testing.T) {
	s := NewGRPCServer("", nopLogger{}, newIdentityStack(t, -time.Second), newCodec(t))
	client := startServer(t, s)
	ctx := context.Background()

	reg, err := client.Register(ctx, &pb.RegisterRequest{Email: "a@x.com", Password: "Pw1!"})
	require.NoError(t, err)
	require.True(t, reg.Success)

	next, err := client.Refresh(ctx, &pb.RefreshRequest{AccessToken: reg.Token, RefreshToken: reg.RefreshToken})
	require.NoError(t, err)
	require.True(t, next.Success, next.Errors)
	assert.NotEqual(t, reg.Token, next.Token)

	again, err := client.Refresh(ctx, &pb.RefreshRequest{AccessToken: reg.Token, RefreshToken: reg.RefreshToken})
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, string(models.ReasonRefreshTokenUsed), again.Reason)
}

type failingIdentity struct{ err error }

func (f failingIdentity) Register(context.Context, string, string) (*models.AuthResult, error) {
	return nil, f.err
}
func (f failingIdentity) Login(context.Context, string, string) (*models.AuthResult, error) {
	return nil, f.err
}
func (f failingIdentity) RefreshToken(context.Context, string, string) (*models.AuthResult, error) {
	return nil, f.err
}

func TestEndToEnd_InfrastructureErrorIsInternal(t *testing.T) {
	s := NewGRPCServer("", nopLogger{}, failingIdentity{err: errors.New("db down")}, newCodec(t))
	client := startServer(t, s)

	_, err := client.Login(context.Background(), &pb.LoginRequest{Email: "a@x.com", Password: "Pw1!"})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "internal error", status.Convert(err).Message())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", nopLogger{}, nil, newCodec(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", nopLogger{}, nil, newCodec(t))

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
