package grpc

import (
	"context"

	pb "github.com/dmitrijs2005/tokenauth/internal/proto"
	"github.com/dmitrijs2005/tokenauth/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toAuthResponse(r *models.AuthResult) *pb.AuthResponse {
	return &pb.AuthResponse{
		Success:      r.Success,
		Token:        r.Token,
		RefreshToken: r.RefreshToken,
		UserID:       r.UserID,
		Reason:       string(r.Reason),
		Errors:       r.Errors,
	}
}

func (s *GRPCServer) authResponse(ctx context.Context, op string, r *models.AuthResult, err error) (*pb.AuthResponse, error) {
	if err != nil {
		s.logger.Error(ctx, op+" failed", "error", err.Error())
		return nil, status.Error(codes.Internal, "internal error")
	}
	return toAuthResponse(r), nil
}

func (s *GRPCServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.AuthResponse, error) {

	s.logger.Info(ctx, "Registration request")

	result, err := s.identity.Register(ctx, req.Email, req.Password)
	return s.authResponse(ctx, "register", result, err)
}

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.AuthResponse, error) {

	result, err := s.identity.Login(ctx, req.Email, req.Password)
	return s.authResponse(ctx, "login", result, err)
}

func (s *GRPCServer) Refresh(ctx context.Context, req *pb.RefreshRequest) (*pb.AuthResponse, error) {

	result, err := s.identity.RefreshToken(ctx, req.AccessToken, req.RefreshToken)
	return s.authResponse(ctx, "refresh", result, err)
}

// Me echoes the identity carried by the caller's access token.
func (s *GRPCServer) Me(ctx context.Context, _ *pb.MeRequest) (*pb.MeResponse, error) {

	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	return &pb.MeResponse{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Claims:    claims.Extra,
		ExpiresAt: claims.Expiry().Unix(),
	}, nil
}
