package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterLoginIsUpsert(t *testing.T) {
	roster := NewRoster()
	alice := UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}

	roster.Login(alice, "conn-1")
	snapshot := roster.Login(alice, "conn-2")

	// Repeated logins never duplicate; the latest connection wins.
	require.Len(t, snapshot, 1)
	assert.Equal(t, "conn-2", snapshot[0].SocketID)
	assert.Equal(t, StatusOnline, snapshot[0].Status)
}

func TestRosterSetStatus(t *testing.T) {
	roster := NewRoster()
	roster.Login(UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}, "conn-1")

	snapshot, ok := roster.SetStatus("u1", StatusBusy)
	require.True(t, ok)
	require.Len(t, snapshot, 1)
	assert.Equal(t, StatusBusy, snapshot[0].Status)
}

func TestRosterSetStatusUnknownUserIsNoop(t *testing.T) {
	roster := NewRoster()

	_, ok := roster.SetStatus("ghost-id", StatusBusy)
	assert.False(t, ok)
	assert.Empty(t, roster.Snapshot())
}

func TestRosterStaleTaskLeaveGuard(t *testing.T) {
	roster := NewRoster()
	roster.Login(UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}, "conn-1")

	_, ok := roster.JoinTask("u1", "T1")
	require.True(t, ok)
	delta, ok := roster.JoinTask("u1", "T2")
	require.True(t, ok)
	assert.Equal(t, "joined", delta.Action)
	assert.Equal(t, "T2", delta.TaskID)

	// A late leave for the earlier task must not clobber the newer join.
	_, ok = roster.LeaveTask("u1", "T1")
	assert.False(t, ok)
	entry, _ := roster.Get("u1")
	assert.Equal(t, "T2", entry.CurrentTask)

	delta, ok = roster.LeaveTask("u1", "T2")
	require.True(t, ok)
	assert.Equal(t, "left", delta.Action)
	entry, _ = roster.Get("u1")
	assert.Empty(t, entry.CurrentTask)
}

func TestRosterTaskJoinUnknownUserIsNoop(t *testing.T) {
	roster := NewRoster()

	_, ok := roster.JoinTask("ghost-id", "T1")
	assert.False(t, ok)
	_, ok = roster.LeaveTask("ghost-id", "T1")
	assert.False(t, ok)
}

func TestRosterRemoveConn(t *testing.T) {
	roster := NewRoster()
	roster.Login(UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}, "conn-1")
	roster.Login(UserInfo{UserID: "u2", Name: "Bob", Email: "b@x.com"}, "conn-2")

	userID, snapshot, ok := roster.RemoveConn("conn-1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "u2", snapshot[0].UserID)

	_, _, ok = roster.RemoveConn("conn-1")
	assert.False(t, ok)
}
