package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
)

type recordingSink struct {
	mu   sync.Mutex
	envs []Envelope
	gate chan struct{}
	busy chan struct{}
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, env Envelope) error {
	if s.busy != nil {
		s.busy <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return s.err
}

func (s *recordingSink) received() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.envs...)
}

func TestDispatcher_DeliversToEverySinkInOrder(t *testing.T) {
	first := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	d := NewDispatcher(16, nil, failing, first)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.Emit(ctx, Member("B"), PaymentSettled{TransactionID: strconv.Itoa(i), Amount: int64(i)})
	}
	require.NoError(t, d.Close(ctx))

	got := first.received()
	require.Len(t, got, 5)
	for i, env := range got {
		assert.Equal(t, TypePaymentSettled, env.Type)
		assert.Equal(t, Member("B"), env.Target)
		assert.Equal(t, strconv.Itoa(i), env.Payload.(PaymentSettled).TransactionID)
	}
	assert.Len(t, failing.received(), 5, "a failing sink must not stop delivery")
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{}), busy: make(chan struct{}, 8)}
	d := NewDispatcher(1, nil, sink)
	ctx := context.Background()

	d.Emit(ctx, Member("A"), ExpenseDeleted{ExpenseID: "1"})
	<-sink.busy // worker holds the first event

	d.Emit(ctx, Member("A"), ExpenseDeleted{ExpenseID: "2"}) // fills the buffer
	d.Emit(ctx, Member("A"), ExpenseDeleted{ExpenseID: "3"}) // dropped

	close(sink.gate)
	require.NoError(t, d.Close(ctx))

	got := sink.received()
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Payload.(ExpenseDeleted).ExpenseID)
	assert.Equal(t, "2", got[1].Payload.(ExpenseDeleted).ExpenseID)
}

func TestDispatcher_EmitAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(4, nil, sink)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.NotPanics(t, func() {
		d.Emit(context.Background(), Group("g1"), ExpenseAdded{ExpenseID: "x"})
	})
	assert.Empty(t, sink.received())
}

type memoryNotifications struct {
	mu    sync.Mutex
	items []*models.Notification
}

func (m *memoryNotifications) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
	return nil
}

func TestNotificationSink(t *testing.T) {
	store := &memoryNotifications{}
	sink := NewNotificationSink(store, func(v int64) string { return "INR " + strconv.FormatInt(v, 10) })
	ctx := context.Background()

	ev := PaymentRequestCreated{RequestID: "r1", PayerID: "B", ReceiverID: "A", Amount: 3334, PaymentLink: "upi://pay"}
	require.NoError(t, sink.Deliver(ctx, Envelope{Type: ev.Type(), Target: Group("g1"), Payload: ev, Time: 10}))
	assert.Empty(t, store.items, "group targets are not persisted")

	require.NoError(t, sink.Deliver(ctx, Envelope{Type: ev.Type(), Target: Member("A"), Payload: ev, Time: 10}))
	require.Len(t, store.items, 1)

	n := store.items[0]
	assert.Equal(t, "A", n.MemberID)
	assert.Equal(t, "payment_request_created", n.Kind)
	assert.Equal(t, "Payment incoming", n.Title)
	assert.Equal(t, "B is paying you INR 3334", n.Message)
	assert.Equal(t, int64(10), n.CreatedAt)

	var payload PaymentRequestCreated
	require.NoError(t, json.Unmarshal(n.Data, &payload))
	assert.Equal(t, ev, payload)
}

func TestRedisPublisher_Publishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "splitledger:member:B")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, DefaultBreakerSettings, nil)
	ev := PaymentApproved{RequestID: "r1", PayerID: "B", ReceiverID: "A", Amount: 500, SplitsSettled: 2}
	require.NoError(t, pub.Deliver(ctx, Envelope{Type: ev.Type(), Target: Member("B"), Payload: ev, Time: 7}))

	select {
	case msg := <-sub.Channel():
		var got struct {
			Type    Type            `json:"type"`
			Target  Target          `json:"target"`
			Payload PaymentApproved `json:"payload"`
			Time    int64           `json:"time"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, TypePaymentApproved, got.Type)
		assert.Equal(t, Member("B"), got.Target)
		assert.Equal(t, ev, got.Payload)
		assert.Equal(t, int64(7), got.Time)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestRedisPublisher_BreakerOpens(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	pub := NewRedisPublisher(client, BreakerSettings{ConsecutiveFailures: 3, Timeout: time.Minute}, nil)
	env := Envelope{Type: TypeExpenseDeleted, Target: Group("g1"), Payload: ExpenseDeleted{ExpenseID: "e"}}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := pub.Deliver(ctx, env)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, gobreaker.StateOpen, pub.State())
	assert.ErrorIs(t, pub.Deliver(ctx, env), gobreaker.ErrOpenState)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "splitledger:group:g1", Channel(Group("g1")))
	assert.Equal(t, "splitledger:member:42", Channel(Member("42")))
}
