package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDispatcherRoutesByName(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var got UserDeletedData
	d.Handle(UserDeleted, func(_ context.Context, env Envelope) error {
		var err error
		got, err = Decode[UserDeletedData](env)
		return err
	})

	id := uuid.New()
	env, err := NewEnvelope(UserDeleted, UserDeletedData{UUID: id})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), env))
	require.Equal(t, id, got.UUID)

	err = d.Dispatch(context.Background(), Envelope{Name: "user_created"})
	require.ErrorIs(t, err, ErrUnhandled)
}

type recordingPublisher struct {
	mu    sync.Mutex
	sent  []Envelope
	block chan struct{}
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, env Envelope) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, env)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, e := range p.sent {
		out = append(out, e.Name)
	}
	return out
}

func TestAsyncPublisherDeliversInOrder(t *testing.T) {
	t.Parallel()

	next := &recordingPublisher{err: errors.New("bus down")}
	p := NewAsyncPublisher(next, 8, zaptest.NewLogger(t))

	require.NoError(t, p.Publish(context.Background(), Envelope{Name: FavoriteAdded}))
	require.NoError(t, p.Publish(context.Background(), Envelope{Name: FavoriteDeleted}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	require.Equal(t, []string{FavoriteAdded, FavoriteDeleted}, next.names())

	// Publishing after close is a silent drop.
	require.NoError(t, p.Publish(context.Background(), Envelope{Name: FavoriteAdded}))
}

func TestAsyncPublisherDropsWhenFull(t *testing.T) {
	t.Parallel()

	next := &recordingPublisher{block: make(chan struct{})}
	p := NewAsyncPublisher(next, 1, zaptest.NewLogger(t))

	// One in flight, one queued, the rest dropped; none of them block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = p.Publish(context.Background(), Envelope{Name: FavoriteAdded})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked")
	}

	close(next.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	require.LessOrEqual(t, len(next.names()), 2)
	require.NotEmpty(t, next.names())
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	t.Parallel()

	encode := func(env Envelope) []byte {
		raw, err := json.Marshal(env)
		require.NoError(t, err)
		return raw
	}
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: encode(Envelope{Name: UserDeleted, Data: json.RawMessage(`{"uuid":"` + uuid.NewString() + `"}`)})},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: encode(Envelope{Name: "user_created"})},
		{Offset: 4, Value: encode(Envelope{Name: TenantLocalizationEdited, Data: json.RawMessage(`{}`)})},
	}}

	d := NewDispatcher()
	handled := make(chan string, 4)
	d.Handle(UserDeleted, func(context.Context, Envelope) error {
		handled <- UserDeleted
		return nil
	})
	d.Handle(TenantLocalizationEdited, func(context.Context, Envelope) error {
		handled <- TenantLocalizationEdited
		return errors.New("db down")
	})

	c := newConsumer(reader, d, zaptest.NewLogger(t))
	c.Start(context.Background())

	require.Equal(t, UserDeleted, <-handled)
	require.Equal(t, TenantLocalizationEdited, <-handled)
	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop())
	require.Equal(t, []int64{1, 2, 3}, reader.commits())
	require.True(t, reader.closed)
}
