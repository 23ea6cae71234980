package presence

import (
	"encoding/json"
	"log/slog"
	"time"
)

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evMessage
	evQuery
)

type loopEvent struct {
	kind   eventKind
	conn   Conn
	connID string
	msg    *Message
	query  *onlineQuery
}

type onlineQuery struct {
	projectIDs []string
	reply      chan []OnlineUser
}

// OnlineUser is the REST-facing view of a live room member.
type OnlineUser struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	ProjectID string `json:"projectId"`
}

// Router is the per-connection event switchboard. All state transitions run
// on a single goroutine (Run) that drains one event channel, so the tables
// need no locks: events are processed strictly in arrival order and every
// handler runs to completion before the next event is looked at. Broadcasts
// therefore always reflect fully-applied state. The only async work is the
// reconciler's durable write, which is spawned after the mutation and never
// awaited.
type Router struct {
	registry   *Registry
	rooms      *RoomTable
	roster     *Roster
	reconciler *Reconciler
	dispatcher *Dispatcher

	events chan loopEvent
	done   chan struct{}
}

func NewRouter(registry *Registry, rooms *RoomTable, roster *Roster, reconciler *Reconciler) *Router {
	return &Router{
		registry:   registry,
		rooms:      rooms,
		roster:     roster,
		reconciler: reconciler,
		dispatcher: NewDispatcher(registry, rooms),
		events:     make(chan loopEvent, 256),
		done:       make(chan struct{}),
	}
}

func (r *Router) Run() {
	for {
		select {
		case ev := <-r.events:
			r.process(ev)
		case <-r.done:
			return
		}
	}
}

func (r *Router) Stop() {
	close(r.done)
}

// Connect registers a live connection with the event loop.
func (r *Router) Connect(conn Conn) {
	r.enqueue(loopEvent{kind: evConnect, conn: conn})
}

// Disconnect sweeps all state owned by the connection. Safe to call for
// connections that never logged in or joined anything.
func (r *Router) Disconnect(connID string) {
	r.enqueue(loopEvent{kind: evDisconnect, connID: connID})
}

// HandleMessage queues an inbound event from the transport.
func (r *Router) HandleMessage(connID string, msg *Message) {
	r.enqueue(loopEvent{kind: evMessage, connID: connID, msg: msg})
}

// OnlineInProjects reports who is present in any of the given rooms, deduped
// by userId. The read goes through the event loop so it observes a
// consistent snapshot.
func (r *Router) OnlineInProjects(projectIDs []string) []OnlineUser {
	q := &onlineQuery{projectIDs: projectIDs, reply: make(chan []OnlineUser, 1)}
	select {
	case r.events <- loopEvent{kind: evQuery, query: q}:
	case <-r.done:
		return []OnlineUser{}
	}
	select {
	case users := <-q.reply:
		return users
	case <-r.done:
		return []OnlineUser{}
	}
}

func (r *Router) enqueue(ev loopEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *Router) process(ev loopEvent) {
	switch ev.kind {
	case evConnect:
		r.registry.Add(ev.conn)
		slog.Info("connection opened", "conn", ev.conn.ID())
	case evDisconnect:
		r.handleDisconnect(ev.connID)
	case evMessage:
		conn, ok := r.registry.Get(ev.connID)
		if !ok {
			// Message raced a disconnect sweep; nothing to do.
			return
		}
		r.handleMessage(conn, ev.msg)
	case evQuery:
		ev.query.reply <- r.handleOnlineQuery(ev.query.projectIDs)
	}
}

func (r *Router) handleMessage(conn Conn, msg *Message) {
	switch msg.Event {
	case EventUserJoined:
		r.handleUserJoined(conn, msg.Data)
	case EventUserLeft:
		r.handleUserLeft(conn, msg.Data)
	case EventGlobalLogin:
		r.handleGlobalLogin(conn, msg.Data)
	case EventStatusChange:
		r.handleStatusChange(conn, msg.Data)
	case EventJoinTask:
		r.handleTaskPresence(conn, msg.Data, true)
	case EventLeaveTask:
		r.handleTaskPresence(conn, msg.Data, false)
	case EventJoinProject:
		r.handleJoinProject(conn, msg.Data)
	case EventLeaveProject:
		r.handleLeaveProject(conn, msg.Data)
	case EventUserTyping:
		r.handleTyping(conn, msg.Data)
	case EventUserStopTyping:
		r.handleStopTyping(conn, msg.Data)
	case EventTaskMoved:
		r.handleTaskMoved(conn, msg.Data)
	default:
		slog.Warn("unknown event", "event", msg.Event, "conn", conn.ID())
	}
}

func (r *Router) handleUserJoined(conn Conn, data json.RawMessage) {
	var p userJoinedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.User == nil || p.User.UserID == "" {
		slog.Warn("invalid user-joined payload", "conn", conn.ID(), "error", err)
		return
	}

	members := r.rooms.Join(p.ProjectID, conn, *p.User)
	slog.Info("user joined project", "user", p.User.UserID, "project", p.ProjectID, "online", len(members))

	r.dispatcher.ToRoom(p.ProjectID, EventOnlineUsers, members)
}

func (r *Router) handleUserLeft(conn Conn, data json.RawMessage) {
	var p userLeftPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.UserID == "" {
		slog.Warn("invalid user-left payload", "conn", conn.ID(), "error", err)
		return
	}

	members, removed := r.rooms.Leave(p.ProjectID, p.UserID)
	r.rooms.Unsubscribe(p.ProjectID, conn.ID())
	if !removed {
		return
	}

	slog.Info("user left project", "user", p.UserID, "project", p.ProjectID, "online", len(members))

	// Broadcast even when the room drained to empty, so remaining
	// listeners see the zero-member list.
	r.dispatcher.ToRoom(p.ProjectID, EventOnlineUsers, members)
}

func (r *Router) handleGlobalLogin(conn Conn, data json.RawMessage) {
	var user UserInfo
	if err := json.Unmarshal(data, &user); err != nil || user.UserID == "" {
		slog.Warn("invalid global-login payload", "conn", conn.ID(), "error", err)
		return
	}

	roster := r.roster.Login(user, conn.ID())
	slog.Info("user logged in globally", "user", user.UserID, "online", len(roster))

	r.reconciler.Record(user.UserID, true, StatusOnline)
	r.dispatcher.ToAll(EventOnlineUsersUpdate, roster)
}

func (r *Router) handleStatusChange(conn Conn, data json.RawMessage) {
	var p statusChangePayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" || !p.Status.Valid() {
		slog.Warn("invalid status-change payload", "conn", conn.ID(), "error", err)
		return
	}

	roster, ok := r.roster.SetStatus(p.UserID, p.Status)
	if !ok {
		// Status change before login or after cleanup. Benign.
		return
	}

	slog.Info("user changed status", "user", p.UserID, "status", p.Status)

	r.reconciler.Record(p.UserID, true, p.Status)
	r.dispatcher.ToAll(EventOnlineUsersUpdate, roster)
}

func (r *Router) handleTaskPresence(conn Conn, data json.RawMessage, joining bool) {
	var p taskPresencePayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" || p.TaskID == "" {
		slog.Warn("invalid task presence payload", "conn", conn.ID(), "joining", joining, "error", err)
		return
	}

	var delta TaskPresence
	var ok bool
	if joining {
		delta, ok = r.roster.JoinTask(p.UserID, p.TaskID)
	} else {
		delta, ok = r.roster.LeaveTask(p.UserID, p.TaskID)
	}
	if !ok {
		return
	}

	r.dispatcher.ToAll(EventTaskPresenceUpdate, delta)
}

func (r *Router) handleJoinProject(conn Conn, data json.RawMessage) {
	projectID, ok := decodeProjectID(data)
	if !ok {
		slog.Warn("invalid join-project payload", "conn", conn.ID())
		return
	}
	r.rooms.Subscribe(projectID, conn)
}

func (r *Router) handleLeaveProject(conn Conn, data json.RawMessage) {
	projectID, ok := decodeProjectID(data)
	if !ok {
		slog.Warn("invalid leave-project payload", "conn", conn.ID())
		return
	}
	r.rooms.Unsubscribe(projectID, conn.ID())
}

func (r *Router) handleTyping(conn Conn, data json.RawMessage) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.UserID == "" {
		slog.Warn("invalid user-typing payload", "conn", conn.ID(), "error", err)
		return
	}

	r.dispatcher.ToRoomExcept(p.ProjectID, conn.ID(), EventUserTyping, typingUpdate{
		UserID:   p.UserID,
		UserName: p.UserName,
		TaskID:   p.TaskID,
		IsTyping: true,
	})
}

func (r *Router) handleStopTyping(conn Conn, data json.RawMessage) {
	var p stopTypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.UserID == "" {
		slog.Warn("invalid user-stop-typing payload", "conn", conn.ID(), "error", err)
		return
	}

	r.dispatcher.ToRoomExcept(p.ProjectID, conn.ID(), EventUserStopTyping, typingUpdate{
		UserID: p.UserID,
	})
}

func (r *Router) handleTaskMoved(conn Conn, data json.RawMessage) {
	var p taskMovedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.TaskID == "" {
		slog.Warn("invalid task-moved payload", "conn", conn.ID(), "error", err)
		return
	}

	r.dispatcher.ToRoomExcept(p.ProjectID, conn.ID(), EventTaskActivity, taskActivity{
		Type:       "task_moved",
		TaskID:     p.TaskID,
		FromStatus: p.FromStatus,
		ToStatus:   p.ToStatus,
		MovedBy:    p.MovedBy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDisconnect sweeps rooms first, then the roster, matching the order
// the rest of the system expects. Both sweeps are idempotent and safe for
// connections that never announced themselves.
func (r *Router) handleDisconnect(connID string) {
	for projectID, members := range r.rooms.DropConn(connID) {
		r.dispatcher.ToRoom(projectID, EventOnlineUsers, members)
	}

	if userID, roster, ok := r.roster.RemoveConn(connID); ok {
		slog.Info("user went offline", "user", userID, "conn", connID)
		r.reconciler.Record(userID, false, StatusOffline)
		r.dispatcher.ToAll(EventOnlineUsersUpdate, roster)
	}

	r.registry.Remove(connID)
	slog.Info("connection closed", "conn", connID)
}

func (r *Router) handleOnlineQuery(projectIDs []string) []OnlineUser {
	seen := make(map[string]bool)
	users := []OnlineUser{}
	for _, projectID := range projectIDs {
		for _, m := range r.rooms.Members(projectID) {
			if seen[m.UserID] {
				continue
			}
			seen[m.UserID] = true
			users = append(users, OnlineUser{
				UserID:    m.UserID,
				Name:      m.Name,
				Email:     m.Email,
				ProjectID: projectID,
			})
		}
	}
	return users
}

// decodeProjectID accepts either a bare JSON string or {"projectId": "..."},
// since clients have historically sent both shapes.
func decodeProjectID(data json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s, true
	}
	var p struct {
		ProjectID string `json:"projectId"`
	}
	if err := json.Unmarshal(data, &p); err == nil && p.ProjectID != "" {
		return p.ProjectID, true
	}
	return "", false
}
