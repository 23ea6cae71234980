package presence

import (
	"sort"
	"time"
)

// Roster is the process-wide record of logged-in users, independent of which
// rooms they occupy. At most one entry exists per userId. Like the room
// table, it is only mutated from the router's event loop.
type Roster struct {
	users map[string]*RosterEntry
}

func NewRoster() *Roster {
	return &Roster{users: make(map[string]*RosterEntry)}
}

// Login upserts the user's entry. A second login for the same userId, for
// example after a reconnect, replaces the old entry so the latest connection
// owns it.
func (ro *Roster) Login(user UserInfo, connID string) []RosterEntry {
	ro.users[user.UserID] = &RosterEntry{
		UserID:   user.UserID,
		Name:     user.Name,
		Email:    user.Email,
		SocketID: connID,
		Status:   StatusOnline,
		JoinedAt: time.Now(),
	}
	return ro.Snapshot()
}

// SetStatus mutates the user's status in place. A status change for a user
// with no entry (sent before login, or after cleanup) is a silent no-op.
func (ro *Roster) SetStatus(userID string, status Status) ([]RosterEntry, bool) {
	entry, ok := ro.users[userID]
	if !ok {
		return nil, false
	}
	entry.Status = status
	return ro.Snapshot(), true
}

// JoinTask marks the task the user is currently focused on.
func (ro *Roster) JoinTask(userID, taskID string) (TaskPresence, bool) {
	entry, ok := ro.users[userID]
	if !ok {
		return TaskPresence{}, false
	}
	entry.CurrentTask = taskID
	return TaskPresence{TaskID: taskID, UserID: userID, UserName: entry.Name, Action: "joined"}, true
}

// LeaveTask clears the current task only if it still matches taskID, so a
// late leave for an earlier task cannot clobber a newer join.
func (ro *Roster) LeaveTask(userID, taskID string) (TaskPresence, bool) {
	entry, ok := ro.users[userID]
	if !ok || entry.CurrentTask != taskID {
		return TaskPresence{}, false
	}
	entry.CurrentTask = ""
	return TaskPresence{TaskID: taskID, UserID: userID, UserName: entry.Name, Action: "left"}, true
}

// RemoveConn drops the entry owned by the connection, if any. By the
// one-entry-per-user invariant at most one can match.
func (ro *Roster) RemoveConn(connID string) (string, []RosterEntry, bool) {
	for userID, entry := range ro.users {
		if entry.SocketID == connID {
			delete(ro.users, userID)
			return userID, ro.Snapshot(), true
		}
	}
	return "", nil, false
}

// Snapshot returns the full roster, always as a (possibly empty) slice.
func (ro *Roster) Snapshot() []RosterEntry {
	list := make([]RosterEntry, 0, len(ro.users))
	for _, entry := range ro.users {
		list = append(list, *entry)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].UserID < list[j].UserID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}

func (ro *Roster) Get(userID string) (RosterEntry, bool) {
	entry, ok := ro.users[userID]
	if !ok {
		return RosterEntry{}, false
	}
	return *entry, true
}
