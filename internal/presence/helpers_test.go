package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id   string
	msgs []*Message
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg *Message) {
	c.msgs = append(c.msgs, msg)
}

func (c *fakeConn) reset() {
	c.msgs = nil
}

// received returns the payloads of every message with the given event name.
func (c *fakeConn) received(event string) []json.RawMessage {
	var out []json.RawMessage
	for _, m := range c.msgs {
		if m.Event == event {
			out = append(out, m.Data)
		}
	}
	return out
}

// lastPayload decodes the most recent message with the given event name.
func (c *fakeConn) lastPayload(t *testing.T, event string, v any) {
	t.Helper()
	payloads := c.received(event)
	require.NotEmpty(t, payloads, "no %s message received by %s", event, c.id)
	require.NoError(t, json.Unmarshal(payloads[len(payloads)-1], v))
}

type persistCall struct {
	UserID string
	Update Update
}

type fakeStore struct {
	mu    sync.Mutex
	calls []persistCall
	err   error
}

func (s *fakeStore) UpdateUserPresence(ctx context.Context, userID string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, persistCall{UserID: userID, Update: update})
	return s.err
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeStore) lastCall(t *testing.T) persistCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls, "no persistence calls recorded")
	return s.calls[len(s.calls)-1]
}

// newTestRouter builds a router over fresh tables and a fake store. Tests
// drive the handlers directly through process, which is exactly what the Run
// loop does, so behavior is deterministic without goroutines.
func newTestRouter() (*Router, *fakeStore) {
	store := &fakeStore{}
	router := NewRouter(NewRegistry(), NewRoomTable(), NewRoster(), NewReconciler(store))
	return router, store
}

func connect(r *Router, id string) *fakeConn {
	c := newFakeConn(id)
	r.process(loopEvent{kind: evConnect, conn: c})
	return c
}

func deliver(t *testing.T, r *Router, conn Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	r.process(loopEvent{kind: evMessage, connID: conn.ID(), msg: &Message{Event: event, Data: data}})
}

func disconnect(r *Router, connID string) {
	r.process(loopEvent{kind: evDisconnect, connID: connID})
}

func mustMessage(t *testing.T, event string, payload any) *Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Message{Event: event, Data: data}
}
