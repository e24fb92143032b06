// Package devtoken mints caller tokens for local environments and tooling.
package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Params are the claims of a dev token. No environment variables are read
// so the builder stays deterministic for tooling.
type Params struct {
	UserUUID       uuid.UUID
	TenantUUID     uuid.UUID
	VisibleTenants []uuid.UUID
	ExpiresIn      time.Duration // default 1h
	Issuer         string        // default "palmyra-directory-dev"
}

func claims(p Params, now time.Time) (jwt.MapClaims, error) {
	if p.UserUUID == uuid.Nil {
		return nil, errors.New("user uuid is required")
	}
	if p.TenantUUID == uuid.Nil {
		return nil, errors.New("tenant uuid is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	issuer := p.Issuer
	if issuer == "" {
		issuer = "palmyra-directory-dev"
	}

	visible := make([]string, 0, len(p.VisibleTenants))
	for _, t := range p.VisibleTenants {
		visible = append(visible, t.String())
	}

	return jwt.MapClaims{
		"iss":             issuer,
		"sub":             p.UserUUID.String(),
		"user_uuid":       p.UserUUID.String(),
		"tenant_uuid":     p.TenantUUID.String(),
		"visible_tenants": visible,
		"iat":             now.Unix(),
		"exp":             now.Add(expiresIn).Unix(),
	}, nil
}

// BuildHMAC returns an HS256 token signed with secret.
func BuildHMAC(p Params, secret []byte, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}
	c, err := claims(p, now)
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// BuildUnsigned returns a token with alg "none" and no signature, accepted
// by the API only when AUTH_PROVIDER=dev.
func BuildUnsigned(p Params, now time.Time) (string, error) {
	c, err := claims(p, now)
	if err != nil {
		return "", err
	}

	headerSegment, err := encodeSegment(map[string]any{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadSegment, err := encodeSegment(c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s.", headerSegment, payloadSegment), nil
}

func encodeSegment(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
