package presence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcilerRecordsTransition(t *testing.T) {
	store := &fakeStore{}
	rec := NewReconciler(store)

	rec.Record("u1", true, StatusOnline)
	rec.Flush()

	call := store.lastCall(t)
	assert.Equal(t, "u1", call.UserID)
	assert.True(t, call.Update.Online)
	assert.Equal(t, StatusOnline, call.Update.Status)
	assert.False(t, call.Update.LastSeen.IsZero())
}

func TestReconcilerSwallowsStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("storage down")}
	rec := NewReconciler(store)

	// Must not panic or block; the failure is logged and dropped.
	rec.Record("u1", false, StatusOffline)
	rec.Flush()

	assert.Equal(t, 1, store.callCount())
}

func TestReconcilerFlushWaitsForAllWrites(t *testing.T) {
	store := &fakeStore{}
	rec := NewReconciler(store)

	for i := 0; i < 10; i++ {
		rec.Record("u1", true, StatusBusy)
	}
	rec.Flush()

	assert.Equal(t, 10, store.callCount())
}
