package grpc

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tokenauth/internal/server/auth"
)

// Policy authorizes a caller from its validated token claims. A non-nil
// error denies the call.
type Policy func(*auth.Claims) error

// RequireClaim admits callers whose token carries claim typ with value.
func RequireClaim(typ, value string) Policy {
	return func(c *auth.Claims) error {
		if !c.HasClaim(typ, value) {
			return fmt.Errorf("claim %q=%q required", typ, value)
		}
		return nil
	}
}

// RequireEmailDomain admits callers whose email is in domain.
func RequireEmailDomain(domain string) Policy {
	suffix := "@" + strings.ToLower(domain)
	return func(c *auth.Claims) error {
		if !strings.HasSuffix(strings.ToLower(c.Email), suffix) {
			return fmt.Errorf("email domain %q required", domain)
		}
		return nil
	}
}
