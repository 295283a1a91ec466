package contentstore

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoCredential      = errors.New("no write credential configured")
	errExpiredCredential = errors.New("write credential has expired")
)

// WriteReady reports whether uploads can be attempted. It returns an error of
// kind KindMisconfigured when no credential is set or when the credential is
// a JWT whose exp claim has passed. The token signature is not checked; that
// is the pinning service's job.
func (c *Client) WriteReady() error {
	if c.credential == "" {
		return &Error{Kind: KindMisconfigured, Op: "write", Err: errNoCredential}
	}
	exp, ok := credentialExpiry(c.credential)
	if ok && !c.now().Before(exp) {
		return &Error{Kind: KindMisconfigured, Op: "write", Err: errExpiredCredential}
	}
	return nil
}

// credentialExpiry returns the exp claim of a JWT credential. Opaque API keys
// report ok=false.
func credentialExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}
