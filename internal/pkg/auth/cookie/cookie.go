/*
Package cookie signs and verifies the session cookie value.

The cookie carries an HS256 JWT whose "sid" claim names the persisted session.
The token expiry only guards against replaying very old cookies; the session
store remains the authority on whether a session is still valid.
*/
package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is written into the iss claim of every cookie token.
const Issuer = "roomchat"

// ErrMalformed is returned for any value that does not verify.
var ErrMalformed = errors.New("malformed session cookie")

// Claims is the JWT body carried by the session cookie.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Issue signs a cookie value for session id sid valid for ttl.
func Issue(sid, secret string, ttl time.Duration) (string, error) {
	if sid == "" {
		return "", fmt.Errorf("cookie: empty session id")
	}

	now := time.Now()
	claims := Claims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("cookie: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of value and returns the session id it carries.
func Verify(value, secret string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if claims.SessionID == "" {
		return "", fmt.Errorf("%w: missing sid claim", ErrMalformed)
	}

	return claims.SessionID, nil
}

// New builds the http.Cookie that carries value.
func New(name, value string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
