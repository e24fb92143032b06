package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBuildUnsigned(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	user, tenant, sub := uuid.New(), uuid.New(), uuid.New()

	token, err := BuildUnsigned(Params{UserUUID: user, TenantUUID: tenant, VisibleTenants: []uuid.UUID{tenant, sub}}, now)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	require.Empty(t, parts[2])

	header := decode(t, parts[0])
	require.Equal(t, "none", header["alg"])

	payload := decode(t, parts[1])
	require.Equal(t, user.String(), payload["user_uuid"])
	require.Equal(t, tenant.String(), payload["tenant_uuid"])
	require.Equal(t, []any{tenant.String(), sub.String()}, payload["visible_tenants"])
	require.EqualValues(t, now.Add(time.Hour).Unix(), payload["exp"])
}

func TestBuildHMACRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cret")
	user, tenant := uuid.New(), uuid.New()
	token, err := BuildHMAC(Params{UserUUID: user, TenantUUID: tenant}, secret, time.Time{})
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return secret, nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, user.String(), claims["sub"])

	_, err = jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte("other"), nil })
	require.Error(t, err)
}

func TestBuildRequiresIdentity(t *testing.T) {
	t.Parallel()

	_, err := BuildUnsigned(Params{TenantUUID: uuid.New()}, time.Time{})
	require.Error(t, err)
	_, err = BuildHMAC(Params{UserUUID: uuid.New()}, []byte("x"), time.Time{})
	require.Error(t, err)
	_, err = BuildHMAC(Params{UserUUID: uuid.New(), TenantUUID: uuid.New()}, nil, time.Time{})
	require.Error(t, err)
}

func decode(t *testing.T, segment string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
