// Package requesttrace records who initiated a request or background job so
// logs and emitted events can be attributed.
package requesttrace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
)

type contextKey string

const ctxAuditInfo contextKey = "PALMYRA_DIRECTORY_REQUEST_TRACE"

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for traceability.
// UserUUID is set only when ActorKind is user.
type AuditInfo struct {
	ActorKind  ActorKind
	UserUUID   *uuid.UUID
	TenantUUID *uuid.UUID
	RequestID  string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCaller builds an AuditInfo for an authenticated caller acting in tenant.
func FromCaller(caller *platformauth.Caller, tenant uuid.UUID, requestID string) (AuditInfo, error) {
	if caller == nil {
		return AuditInfo{}, errors.New("caller is required to build audit info")
	}
	if caller.UserUUID == uuid.Nil {
		return AuditInfo{}, errors.New("user uuid is required to build audit info")
	}
	user := caller.UserUUID
	if tenant == uuid.Nil {
		tenant = caller.TenantUUID
	}
	return AuditInfo{
		ActorKind:  ActorKindUser,
		UserUUID:   &user,
		TenantUUID: &tenant,
		RequestID:  requestID,
	}, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests such as health checks.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background work such as bus event handling.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
