package presence

// Conn is the transport session seen by the presence core. The websocket
// client implements it; tests substitute fakes.
type Conn interface {
	// ID is opaque and unique per session. A reconnecting client shows up
	// with a fresh ID.
	ID() string
	// Send queues a message for delivery. It must not block; delivery
	// failures are the transport's problem, not the core's.
	Send(*Message)
}

// Registry tracks the set of live connections. It is only touched from the
// router's event loop, so it carries no lock.
type Registry struct {
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

func (r *Registry) Add(conn Conn) {
	r.conns[conn.ID()] = conn
}

// Remove is a no-op for unknown ids; a disconnect for an already-swept
// connection is not an error.
func (r *Registry) Remove(connID string) {
	delete(r.conns, connID)
}

func (r *Registry) Get(connID string) (Conn, bool) {
	c, ok := r.conns[connID]
	return c, ok
}

func (r *Registry) All() []Conn {
	all := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		all = append(all, c)
	}
	return all
}

func (r *Registry) Len() int {
	return len(r.conns)
}
