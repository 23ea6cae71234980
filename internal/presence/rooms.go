package presence

import (
	"sort"
	"time"
)

type room struct {
	// members is keyed by userId, which makes the one-entry-per-user
	// invariant structural: a rejoin from a new connection overwrites the
	// stale entry instead of duplicating it.
	members map[string]RoomMember
	// subs is every connection currently receiving this room's broadcasts,
	// keyed by connection id. Membership implies subscription but not the
	// other way round: a client may subscribe for task updates without
	// appearing in the member list.
	subs map[string]Conn
}

// RoomTable tracks, per project room, who is present and who is listening.
// It is only mutated from the router's event loop and carries no lock.
type RoomTable struct {
	rooms map[string]*room
}

func NewRoomTable() *RoomTable {
	return &RoomTable{rooms: make(map[string]*room)}
}

func (t *RoomTable) get(projectID string) *room {
	rm, ok := t.rooms[projectID]
	if !ok {
		rm = &room{members: make(map[string]RoomMember), subs: make(map[string]Conn)}
		t.rooms[projectID] = rm
	}
	return rm
}

// Join subscribes the connection and upserts the member entry for the user.
// An existing entry for the same userId, whatever connection owned it, is
// replaced. Returns the updated member list.
func (t *RoomTable) Join(projectID string, conn Conn, user UserInfo) []RoomMember {
	rm := t.get(projectID)
	rm.subs[conn.ID()] = conn
	rm.members[user.UserID] = RoomMember{
		UserID:   user.UserID,
		Name:     user.Name,
		Email:    user.Email,
		SocketID: conn.ID(),
		JoinedAt: time.Now(),
	}
	return snapshotMembers(rm)
}

// Leave removes the user's entry, if any. Lookup is by userId, not connection
// id, since the client may not know its current connection id. The second
// return reports whether anything was removed.
func (t *RoomTable) Leave(projectID, userID string) ([]RoomMember, bool) {
	rm, ok := t.rooms[projectID]
	if !ok {
		return nil, false
	}
	if _, ok := rm.members[userID]; !ok {
		return nil, false
	}
	delete(rm.members, userID)
	list := snapshotMembers(rm)
	t.prune(projectID, rm)
	return list, true
}

// Subscribe registers the connection for the room's broadcasts without
// adding a member entry.
func (t *RoomTable) Subscribe(projectID string, conn Conn) {
	t.get(projectID).subs[conn.ID()] = conn
}

func (t *RoomTable) Unsubscribe(projectID, connID string) {
	rm, ok := t.rooms[projectID]
	if !ok {
		return
	}
	delete(rm.subs, connID)
	t.prune(projectID, rm)
}

// DropConn sweeps every room for state owned by the connection: the
// subscription always, and the member entry where the connection owns one.
// It returns the updated member list for each room that lost a member, so
// the caller can broadcast them.
func (t *RoomTable) DropConn(connID string) map[string][]RoomMember {
	updated := make(map[string][]RoomMember)
	for projectID, rm := range t.rooms {
		delete(rm.subs, connID)
		for userID, m := range rm.members {
			if m.SocketID == connID {
				delete(rm.members, userID)
				updated[projectID] = snapshotMembers(rm)
				break
			}
		}
		t.prune(projectID, rm)
	}
	return updated
}

// Members returns the current member list. Unknown rooms yield an empty
// list, never an error.
func (t *RoomTable) Members(projectID string) []RoomMember {
	rm, ok := t.rooms[projectID]
	if !ok {
		return []RoomMember{}
	}
	return snapshotMembers(rm)
}

// Subscribers returns the connections listening to the room.
func (t *RoomTable) Subscribers(projectID string) []Conn {
	rm, ok := t.rooms[projectID]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(rm.subs))
	for _, c := range rm.subs {
		conns = append(conns, c)
	}
	return conns
}

func (t *RoomTable) prune(projectID string, rm *room) {
	if len(rm.members) == 0 && len(rm.subs) == 0 {
		delete(t.rooms, projectID)
	}
}

func snapshotMembers(rm *room) []RoomMember {
	list := make([]RoomMember, 0, len(rm.members))
	for _, m := range rm.members {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].UserID < list[j].UserID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}
