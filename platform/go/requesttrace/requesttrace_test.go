package requesttrace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
)

func TestIntoContextAndFromContext(t *testing.T) {
	user := uuid.New()
	audit := AuditInfo{ActorKind: ActorKindUser, UserUUID: &user, RequestID: "req-abc"}

	ctx := IntoContext(context.Background(), audit)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, audit, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
	require.Equal(t, ActorKindAnonymous, FromContextOrAnonymous(context.Background()).ActorKind)
}

func TestFromCaller(t *testing.T) {
	caller := &platformauth.Caller{UserUUID: uuid.New(), TenantUUID: uuid.New()}

	audit, err := FromCaller(caller, uuid.Nil, "req-xyz")
	require.NoError(t, err)
	require.Equal(t, ActorKindUser, audit.ActorKind)
	require.Equal(t, caller.UserUUID, *audit.UserUUID)
	require.Equal(t, caller.TenantUUID, *audit.TenantUUID)
	require.Equal(t, "req-xyz", audit.RequestID)

	selected := uuid.New()
	audit, err = FromCaller(caller, selected, "")
	require.NoError(t, err)
	require.Equal(t, selected, *audit.TenantUUID)
}

func TestFromCallerMissingUser(t *testing.T) {
	_, err := FromCaller(&platformauth.Caller{}, uuid.Nil, "req-1")
	require.Error(t, err)
	_, err = FromCaller(nil, uuid.Nil, "req-1")
	require.Error(t, err)
}

func TestSystem(t *testing.T) {
	audit := System("req-sys")
	require.Equal(t, ActorKindSystem, audit.ActorKind)
	require.Nil(t, audit.UserUUID)
}
