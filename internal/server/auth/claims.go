package auth

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of an access token. Registered claims carry sub,
// jti, iat and exp; Email and UserID are fixed private claims; Extra holds
// per-user claims (e.g. "tags.view") which are flattened to the top level
// of the JSON payload.
type Claims struct {
	jwt.RegisteredClaims
	Email  string
	UserID string
	Extra  map[string]string
}

// claimsJSON is the wire shape of the fixed part of Claims.
type claimsJSON struct {
	jwt.RegisteredClaims
	Email  string `json:"email,omitempty"`
	UserID string `json:"id,omitempty"`
}

var reservedClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	"email": {}, "id": {},
}

func (c Claims) MarshalJSON() ([]byte, error) {
	fixed, err := json.Marshal(claimsJSON{RegisteredClaims: c.RegisteredClaims, Email: c.Email, UserID: c.UserID})
	if err != nil || len(c.Extra) == 0 {
		return fixed, err
	}

	merged := make(map[string]json.RawMessage, len(c.Extra)+8)
	if err := json.Unmarshal(fixed, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func (c *Claims) UnmarshalJSON(data []byte) error {
	var fixed claimsJSON
	if err := json.Unmarshal(data, &fixed); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	c.RegisteredClaims = fixed.RegisteredClaims
	c.Email = fixed.Email
	c.UserID = fixed.UserID
	c.Extra = nil
	for k, v := range all {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]string)
		}
		c.Extra[k] = s
	}
	return nil
}

// Expiry returns the declared exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// HasClaim reports whether the extra claim typ is present with value.
func (c *Claims) HasClaim(typ, value string) bool {
	v, ok := c.Extra[typ]
	return ok && v == value
}
