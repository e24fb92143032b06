// Package events carries the bus messages consumed and produced by the
// directory: user and tenant lifecycle inbound, favorite changes outbound.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Event names.
const (
	UserDeleted              = "user_deleted"
	TenantLocalizationEdited = "tenant_localization_edited"
	FavoriteAdded            = "favorite_added"
	FavoriteDeleted          = "favorite_deleted"
)

// Envelope is the wire form of every event.
type Envelope struct {
	Name       string          `json:"name"`
	OriginUUID string          `json:"origin_uuid,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// UserDeletedData is the payload of user_deleted.
type UserDeletedData struct {
	UUID       uuid.UUID  `json:"uuid"`
	TenantUUID *uuid.UUID `json:"tenant_uuid,omitempty"`
}

// TenantLocalizationData is the payload of tenant_localization_edited.
type TenantLocalizationData struct {
	TenantUUID uuid.UUID `json:"tenant_uuid"`
	Country    *string   `json:"country"`
}

// FavoriteData is the payload of favorite_added and favorite_deleted.
type FavoriteData struct {
	UserUUID      uuid.UUID `json:"user_uuid"`
	TenantUUID    uuid.UUID `json:"tenant_uuid"`
	SourceName    string    `json:"source_name"`
	SourceEntryID string    `json:"source_entry_id"`
}

// NewEnvelope marshals data under name.
func NewEnvelope(name string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Envelope{Name: name, Data: raw}, nil
}

// Handler processes one event. Handlers must be idempotent: the bus may
// deliver the same event more than once.
type Handler func(ctx context.Context, env Envelope) error

// ErrUnhandled is returned by Dispatch for events without a handler.
var ErrUnhandled = errors.New("no handler for event")

// Dispatcher routes envelopes by name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Handle registers h for name, replacing any previous handler.
func (d *Dispatcher) Handle(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch calls the handler registered for env.Name.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	d.mu.RLock()
	h, ok := d.handlers[env.Name]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnhandled, env.Name)
	}
	return h(ctx, env)
}

// Decode unmarshals the payload of env into a T.
func Decode[T any](env Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.Name, err)
	}
	return out, nil
}
