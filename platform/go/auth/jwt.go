package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
)

// ExtractToken reads the bearer token from Authorization, or the raw token
// from X-Auth-Token.
func ExtractToken(r *http.Request) (string, bool) {
	if raw := strings.TrimSpace(r.Header.Get("X-Auth-Token")); raw != "" {
		return raw, true
	}

	authHeader := r.Header.Get("Authorization")
	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	return token, token != ""
}

// FirebaseTokenVerifier validates ID tokens with Firebase Auth.
func FirebaseTokenVerifier(fbAuth *firebaseauth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]any, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			if firebaseauth.IsCertificateFetchFailed(err) {
				return nil, fmt.Errorf("%w: %v", apperr.ErrAuthUnreachable, err)
			}
			return nil, err
		}

		claims := make(map[string]any, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		if tenant := t.Firebase.Tenant; tenant != "" {
			claims["firebase"] = map[string]any{"tenant": tenant}
		}
		return claims, nil
	}
}

// HMACTokenVerifier validates HS256 tokens signed with secret.
func HMACTokenVerifier(secret []byte) VerifyFunc {
	return func(_ context.Context, token string) (map[string]any, error) {
		parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			return nil, err
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return nil, errors.New("unexpected claims type")
		}
		return map[string]any(claims), nil
	}
}

// UnsignedTokenVerifier decodes JWT payloads without validation. Dev only.
func UnsignedTokenVerifier() VerifyFunc {
	return func(_ context.Context, token string) (map[string]any, error) {
		return parseUnsignedJWTClaims(token)
	}
}

func parseUnsignedJWTClaims(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, errors.New("invalid token format")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	claims := make(map[string]any)
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	return claims, nil
}
