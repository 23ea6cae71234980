package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalLoginBroadcastsFullRoster(t *testing.T) {
	router, store := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")

	deliver(t, router, a, EventGlobalLogin, UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"})

	var roster []RosterEntry
	b.lastPayload(t, EventOnlineUsersUpdate, &roster)
	require.Len(t, roster, 1)
	assert.Equal(t, "u1", roster[0].UserID)
	assert.Equal(t, StatusOnline, roster[0].Status)
	assert.Equal(t, "conn-a", roster[0].SocketID)

	// The sender gets the snapshot too; the fan-out is process-wide.
	a.lastPayload(t, EventOnlineUsersUpdate, &roster)
	require.Len(t, roster, 1)

	router.reconciler.Flush()
	call := store.lastCall(t)
	assert.Equal(t, "u1", call.UserID)
	assert.True(t, call.Update.Online)
	assert.Equal(t, StatusOnline, call.Update.Status)
}

func TestGlobalLoginRejectsMissingUserID(t *testing.T) {
	router, store := newTestRouter()
	a := connect(router, "conn-a")

	deliver(t, router, a, EventGlobalLogin, map[string]string{"name": "Alice"})

	assert.Empty(t, a.received(EventOnlineUsersUpdate))
	router.reconciler.Flush()
	assert.Zero(t, store.callCount())
}

func TestStatusChangeBroadcastsAndPersists(t *testing.T) {
	router, store := newTestRouter()
	a := connect(router, "conn-a")
	deliver(t, router, a, EventGlobalLogin, UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"})
	a.reset()

	deliver(t, router, a, EventStatusChange, map[string]string{"userId": "u1", "status": "busy"})

	var roster []RosterEntry
	a.lastPayload(t, EventOnlineUsersUpdate, &roster)
	require.Len(t, roster, 1)
	assert.Equal(t, StatusBusy, roster[0].Status)

	router.reconciler.Flush()
	call := store.lastCall(t)
	assert.Equal(t, StatusBusy, call.Update.Status)
	assert.True(t, call.Update.Online)
}

func TestStatusChangeUnknownUserIsSilent(t *testing.T) {
	router, store := newTestRouter()
	a := connect(router, "conn-a")

	deliver(t, router, a, EventStatusChange, map[string]string{"userId": "ghost-id", "status": "busy"})

	assert.Empty(t, a.received(EventOnlineUsersUpdate))
	router.reconciler.Flush()
	assert.Zero(t, store.callCount())
}

func TestStatusChangeRejectsUnknownStatus(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	deliver(t, router, a, EventGlobalLogin, UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"})
	a.reset()

	deliver(t, router, a, EventStatusChange, map[string]string{"userId": "u1", "status": "invisible"})

	assert.Empty(t, a.received(EventOnlineUsersUpdate))
	entry, _ := router.roster.Get("u1")
	assert.Equal(t, StatusOnline, entry.Status)
}

func TestUserJoinedBroadcastsMemberList(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")

	deliver(t, router, a, EventUserJoined, map[string]any{
		"projectId": "p1",
		"user":      UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"},
	})

	var members []RoomMember
	a.lastPayload(t, EventOnlineUsers, &members)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].Name)
	assert.Equal(t, "conn-a", members[0].SocketID)

	// Room broadcasts stay scoped to the room.
	assert.Empty(t, b.received(EventOnlineUsers))
}

func TestUserJoinedMalformedPayloadDropped(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")

	deliver(t, router, a, EventUserJoined, map[string]any{"projectId": "p1"})
	deliver(t, router, a, EventUserJoined, map[string]any{"user": UserInfo{UserID: "u1"}})

	assert.Empty(t, a.received(EventOnlineUsers))
	assert.Empty(t, router.rooms.Members("p1"))
}

func TestUserRejoinFromNewConnectionReplacesEntry(t *testing.T) {
	router, _ := newTestRouter()
	alice := UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}

	a1 := connect(router, "conn-a1")
	deliver(t, router, a1, EventUserJoined, map[string]any{"projectId": "p1", "user": alice})

	// Network blip: same user, fresh connection.
	a2 := connect(router, "conn-a2")
	deliver(t, router, a2, EventUserJoined, map[string]any{"projectId": "p1", "user": alice})

	var members []RoomMember
	a2.lastPayload(t, EventOnlineUsers, &members)
	require.Len(t, members, 1)
	assert.Equal(t, "conn-a2", members[0].SocketID)
}

func TestUserLeftBroadcastsEvenWhenRoomEmpties(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")

	deliver(t, router, b, EventJoinProject, "p1")
	deliver(t, router, a, EventUserJoined, map[string]any{
		"projectId": "p1",
		"user":      UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"},
	})
	b.reset()

	deliver(t, router, a, EventUserLeft, map[string]string{"projectId": "p1", "userId": "u1"})

	// The subscribed listener sees the zero-member list.
	var members []RoomMember
	b.lastPayload(t, EventOnlineUsers, &members)
	assert.Empty(t, members)
}

func TestUserLeftUnknownUserIsSilent(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")
	deliver(t, router, b, EventJoinProject, "p1")
	b.reset()

	deliver(t, router, a, EventUserLeft, map[string]string{"projectId": "p1", "userId": "ghost"})

	assert.Empty(t, b.received(EventOnlineUsers))
}

func TestTaskPresenceFanOutIsProcessWide(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")
	deliver(t, router, a, EventGlobalLogin, UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"})

	deliver(t, router, a, EventJoinTask, map[string]string{"userId": "u1", "taskId": "T1"})

	var delta TaskPresence
	b.lastPayload(t, EventTaskPresenceUpdate, &delta)
	assert.Equal(t, "T1", delta.TaskID)
	assert.Equal(t, "Alice", delta.UserName)
	assert.Equal(t, "joined", delta.Action)
}

func TestStaleTaskLeaveDoesNotBroadcast(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	deliver(t, router, a, EventGlobalLogin, UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"})
	deliver(t, router, a, EventJoinTask, map[string]string{"userId": "u1", "taskId": "T1"})
	deliver(t, router, a, EventJoinTask, map[string]string{"userId": "u1", "taskId": "T2"})
	a.reset()

	deliver(t, router, a, EventLeaveTask, map[string]string{"userId": "u1", "taskId": "T1"})
	assert.Empty(t, a.received(EventTaskPresenceUpdate))

	deliver(t, router, a, EventLeaveTask, map[string]string{"userId": "u1", "taskId": "T2"})
	var delta TaskPresence
	a.lastPayload(t, EventTaskPresenceUpdate, &delta)
	assert.Equal(t, "left", delta.Action)
}

func TestTypingRelayExcludesSender(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")
	deliver(t, router, a, EventJoinProject, "p1")
	deliver(t, router, b, EventJoinProject, "p1")

	deliver(t, router, a, EventUserTyping, map[string]string{
		"projectId": "p1", "taskId": "T1", "userId": "u1", "userName": "Alice",
	})

	assert.Empty(t, a.received(EventUserTyping))
	var update typingUpdate
	b.lastPayload(t, EventUserTyping, &update)
	assert.Equal(t, "u1", update.UserID)
	assert.True(t, update.IsTyping)

	deliver(t, router, a, EventUserStopTyping, map[string]string{"projectId": "p1", "userId": "u1"})
	b.lastPayload(t, EventUserStopTyping, &update)
	assert.False(t, update.IsTyping)
}

func TestTaskMovedRelayedToRoom(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")
	c := connect(router, "conn-c")
	deliver(t, router, a, EventJoinProject, "p1")
	deliver(t, router, b, EventJoinProject, "p1")

	deliver(t, router, a, EventTaskMoved, map[string]string{
		"projectId": "p1", "taskId": "T1", "fromStatus": "todo", "toStatus": "done", "movedBy": "Alice",
	})

	var act taskActivity
	b.lastPayload(t, EventTaskActivity, &act)
	assert.Equal(t, "task_moved", act.Type)
	assert.Equal(t, "done", act.ToStatus)
	assert.NotEmpty(t, act.Timestamp)

	// The mover already applied the change locally; outside the room no one
	// should hear about it either.
	assert.Empty(t, a.received(EventTaskActivity))
	assert.Empty(t, c.received(EventTaskActivity))
}

func TestDisconnectCleanupIsTotal(t *testing.T) {
	router, store := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")
	alice := UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}

	deliver(t, router, b, EventJoinProject, "p1")
	deliver(t, router, a, EventGlobalLogin, alice)
	deliver(t, router, a, EventUserJoined, map[string]any{"projectId": "p1", "user": alice})
	deliver(t, router, a, EventUserJoined, map[string]any{"projectId": "p2", "user": alice})
	b.reset()

	disconnect(router, "conn-a")

	assert.Empty(t, router.rooms.Members("p1"))
	assert.Empty(t, router.rooms.Members("p2"))
	assert.Empty(t, router.roster.Snapshot())
	assert.Zero(t, router.registry.Len(), "disconnected connection should leave the registry")

	// Remaining listener sees both the drained room and the shrunken roster.
	var members []RoomMember
	b.lastPayload(t, EventOnlineUsers, &members)
	assert.Empty(t, members)
	var roster []RosterEntry
	b.lastPayload(t, EventOnlineUsersUpdate, &roster)
	assert.Empty(t, roster)

	router.reconciler.Flush()
	call := store.lastCall(t)
	assert.Equal(t, "u1", call.UserID)
	assert.False(t, call.Update.Online)
	assert.Equal(t, StatusOffline, call.Update.Status)
}

func TestDisconnectOfUnknownConnectionIsNoop(t *testing.T) {
	router, store := newTestRouter()
	connect(router, "conn-a")

	disconnect(router, "never-seen")
	disconnect(router, "never-seen")

	assert.Equal(t, 1, router.registry.Len())
	router.reconciler.Flush()
	assert.Zero(t, store.callCount())
}

func TestMessageFromSweptConnectionDropped(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	disconnect(router, "conn-a")

	// Late frame after the sweep: must not resurrect any state.
	deliver(t, router, a, EventGlobalLogin, UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"})
	assert.Empty(t, router.roster.Snapshot())
}

func TestOnlineQueryDeduplicatesAcrossProjects(t *testing.T) {
	router, _ := newTestRouter()
	a := connect(router, "conn-a")
	b := connect(router, "conn-b")
	alice := UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}
	bob := UserInfo{UserID: "u2", Name: "Bob", Email: "b@x.com"}

	deliver(t, router, a, EventUserJoined, map[string]any{"projectId": "p1", "user": alice})
	deliver(t, router, a, EventUserJoined, map[string]any{"projectId": "p2", "user": alice})
	deliver(t, router, b, EventUserJoined, map[string]any{"projectId": "p2", "user": bob})

	users := router.handleOnlineQuery([]string{"p1", "p2", "p3"})
	require.Len(t, users, 2)

	seen := map[string]bool{}
	for _, u := range users {
		seen[u.UserID] = true
	}
	assert.True(t, seen["u1"])
	assert.True(t, seen["u2"])
}

// TestRunLoopServesQueries drives the router through its real event loop.
// The query at the end doubles as a barrier: it only answers after every
// queued event has been applied.
func TestRunLoopServesQueries(t *testing.T) {
	router, _ := newTestRouter()
	go router.Run()
	defer router.Stop()

	a := newFakeConn("conn-a")
	router.Connect(a)
	router.HandleMessage("conn-a", mustMessage(t, EventUserJoined, map[string]any{
		"projectId": "p1",
		"user":      UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"},
	}))

	users := router.OnlineInProjects([]string{"p1"})
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)
}

func TestEndToEndScenario(t *testing.T) {
	router, store := newTestRouter()
	a := connect(router, "conn-a")
	alice := UserInfo{UserID: "u1", Name: "Alice", Email: "a@x.com"}

	deliver(t, router, a, EventGlobalLogin, alice)
	var roster []RosterEntry
	a.lastPayload(t, EventOnlineUsersUpdate, &roster)
	require.Len(t, roster, 1)
	assert.Equal(t, "u1", roster[0].UserID)
	assert.Equal(t, StatusOnline, roster[0].Status)

	deliver(t, router, a, EventUserJoined, map[string]any{"projectId": "p1", "user": alice})
	var members []RoomMember
	a.lastPayload(t, EventOnlineUsers, &members)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].Name)

	disconnect(router, "conn-a")
	assert.Empty(t, router.rooms.Members("p1"))
	assert.Empty(t, router.roster.Snapshot())

	router.reconciler.Flush()
	offline := 0
	store.mu.Lock()
	for _, call := range store.calls {
		if !call.Update.Online {
			offline++
			assert.Equal(t, StatusOffline, call.Update.Status)
		}
	}
	store.mu.Unlock()
	assert.Equal(t, 1, offline, "exactly one offline persistence call expected")
}
