// Package auth verifies bearer credentials for the collaboration engine.
//
// Tokens are HMAC-signed payload.signature strings issued by the identity
// provider. This core only consumes them: a valid token yields the user's
// identity, anything else fails closed.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/overlaylabs/copresence/internal/domain"
)

// Claims is the identity payload carried by a token.
type Claims struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Exp   int64  `json:"exp"`
}

// Verifier parses and checks bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a token verifier.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// NewVerifierWithClock creates a verifier with an injected clock for tests.
func NewVerifierWithClock(secret []byte, now func() time.Time) *Verifier {
	return &Verifier{secret: secret, now: now}
}

// Issue signs a token for the given claims. Exposed for local development
// and tests; production tokens come from the external identity provider.
func Issue(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

// Verify parses a bearer token and returns the authenticated user.
// Any defect (bad shape, bad signature, missing claims, expiry) surfaces
// as ErrUnauthorized so callers terminate the connection.
func (v *Verifier) Verify(token string) (domain.UserInfo, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return domain.UserInfo{}, fmt.Errorf("%w: malformed token", domain.ErrUnauthorized)
	}
	payload, signature := parts[0], parts[1]

	expected := sign(v.secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.UserInfo{}, fmt.Errorf("%w: bad signature", domain.ErrUnauthorized)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return domain.UserInfo{}, fmt.Errorf("%w: bad payload encoding", domain.ErrUnauthorized)
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return domain.UserInfo{}, fmt.Errorf("%w: bad payload", domain.ErrUnauthorized)
	}
	if claims.Sub == "" || claims.Name == "" || claims.Exp == 0 {
		return domain.UserInfo{}, fmt.Errorf("%w: missing claims", domain.ErrUnauthorized)
	}
	if v.now().Unix() >= claims.Exp {
		return domain.UserInfo{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}

	return domain.UserInfo{
		ID:       claims.Sub,
		Username: claims.Name,
		Email:    claims.Email,
	}, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
