// Package authn defines the TokenVerifier seam the out-of-scope
// authentication layer (per spec.md §1) implements, with an HMAC-JWT
// reference implementation adapted from control_plane/auth/jwt.go —
// kept because it is exactly the kind of ambient "auth seam" the core
// must interface with even though it doesn't own authentication, used
// only by cmd/aidosd's demo HTTP surface.
package authn

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Claims carries the identity/role a verified token asserts.
type Claims struct {
	Subject   string `json:"sub"`
	Role      string `json:"role"`
	Issuer    string `json:"iss"`
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

// TokenVerifier is the seam the external auth layer implements.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// HMACVerifier verifies HS256-signed tokens in the teacher's minimal
// header.claims.signature shape (not full RFC 7519 — no alg negotiation,
// single shared secret), matching control_plane/auth/jwt.go's
// ValidateToken contract.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewHMACVerifier creates a verifier requiring secret (>=32 bytes, per
// the teacher's own STRICT startup check) and the given issuer/audience.
func NewHMACVerifier(secret []byte, issuer, audience string) (*HMACVerifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("authn: secret must be at least 32 bytes")
	}
	return &HMACVerifier{secret: secret, issuer: issuer, audience: audience}, nil
}

// Issue signs a new token for subject/role, valid for ttl.
func (v *HMACVerifier) Issue(subject, role string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Subject:   subject,
		Role:      role,
		Issuer:    v.issuer,
		Audience:  v.audience,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	tokenPart := b64encode(headerJSON) + "." + b64encode(claimsJSON)
	return tokenPart + "." + v.sign(tokenPart), nil
}

// Verify parses and validates token against v's secret/issuer/audience
// and the current time.
func (v *HMACVerifier) Verify(token string) (Claims, error) {
	return v.verifyAt(token, time.Now())
}

func (v *HMACVerifier) verifyAt(token string, now time.Time) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, errors.New("authn: invalid token format")
	}

	tokenPart := parts[0] + "." + parts[1]
	expected := v.sign(tokenPart)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return Claims{}, errors.New("authn: invalid signature")
	}

	claimsJSON, err := b64decode(parts[1])
	if err != nil {
		return Claims{}, errors.New("authn: malformed claims")
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return Claims{}, errors.New("authn: malformed claims")
	}

	if now.Unix() > claims.ExpiresAt {
		return Claims{}, errors.New("authn: token expired")
	}
	if claims.Issuer != v.issuer || claims.Audience != v.audience {
		return Claims{}, errors.New("authn: invalid issuer or audience")
	}
	return claims, nil
}

func (v *HMACVerifier) sign(message string) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(message))
	return b64encode(h.Sum(nil))
}

func b64encode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func b64decode(data string) ([]byte, error) {
	if l := len(data) % 4; l > 0 {
		data += strings.Repeat("=", 4-l)
	}
	return base64.URLEncoding.DecodeString(data)
}
