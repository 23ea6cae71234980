package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const persistTimeout = 5 * time.Second

// Update is the durable subset of a presence transition.
type Update struct {
	Online   bool
	Status   Status
	LastSeen time.Time
}

// Store is the durable user record the roster shadows into.
type Store interface {
	UpdateUserPresence(ctx context.Context, userID string, update Update) error
}

// Reconciler mirrors roster transitions into the durable store without ever
// blocking the event loop. Each transition is its own independent write; a
// failed or slow write is logged and forgotten, and concurrent writes for the
// same user may land out of order. The in-memory roster stays authoritative
// either way.
type Reconciler struct {
	store Store
	wg    sync.WaitGroup
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Record fires a detached write for the transition and returns immediately.
func (r *Reconciler) Record(userID string, online bool, status Status) {
	update := Update{Online: online, Status: status, LastSeen: time.Now()}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := r.store.UpdateUserPresence(ctx, userID, update); err != nil {
			slog.Error("persist presence", "user", userID, "status", status, "error", err)
		}
	}()
}

// Flush waits for in-flight writes to finish. Called at shutdown so final
// offline transitions make it to the store.
func (r *Reconciler) Flush() {
	r.wg.Wait()
}
