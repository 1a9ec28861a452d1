package proto

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned by Register, Login and Refresh. Business failures
// come back with Success=false and a non-empty Errors list, not as a gRPC
// status.
type AuthResponse struct {
	Success      bool     `json:"success"`
	Token        string   `json:"token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

type MeRequest struct{}

type MeResponse struct {
	UserID    string            `json:"user_id"`
	Email     string            `json:"email"`
	Claims    map[string]string `json:"claims,omitempty"`
	ExpiresAt int64             `json:"expires_at"`
}
