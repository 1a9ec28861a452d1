package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tokenauth/internal/common"
	"github.com/dmitrijs2005/tokenauth/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext returns the claims stored by the interceptor on
// protected calls.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	policies, protected := s.protected[info.FullMethod]
	if !protected {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.validator.Validate(accessToken)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	for _, p := range policies {
		if err := p(claims); err != nil {
			s.logger.Warn(ctx, "access denied", "method", info.FullMethod, "user_id", claims.UserID, "error", err.Error())
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
	}

	ctx = context.WithValue(ctx, claimsKey, claims)

	return handler(ctx, req)
}
