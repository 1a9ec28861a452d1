package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// RefreshTokenSize is the number of random bytes behind an opaque refresh
// token. The hex form is twice as long.
const RefreshTokenSize = 32
