package presence

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Message is the wire envelope for both directions. Data is left raw so each
// event can carry its own payload shape.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventGlobalLogin    = "global-login"
	EventStatusChange   = "status-change"
	EventJoinTask       = "join-task"
	EventLeaveTask      = "leave-task"
	EventJoinProject    = "join-project"
	EventLeaveProject   = "leave-project"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventTaskMoved      = "task-moved"
)

// Outbound event names.
const (
	EventOnlineUsers        = "online-users"
	EventOnlineUsersUpdate  = "online-users-update"
	EventTaskPresenceUpdate = "task-presence-update"
	EventTaskActivity       = "task-activity"
)

// Status is a user's self-reported availability. Offline is a flag the user
// can set while still connected; actually going away is signalled by the
// roster entry disappearing on disconnect.
type Status string

const (
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// UserInfo is the identity block clients announce themselves with.
type UserInfo struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type userJoinedPayload struct {
	ProjectID string    `json:"projectId"`
	User      *UserInfo `json:"user"`
}

type userLeftPayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

type statusChangePayload struct {
	UserID string `json:"userId"`
	Status Status `json:"status"`
}

type taskPresencePayload struct {
	UserID string `json:"userId"`
	TaskID string `json:"taskId"`
}

type typingPayload struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId,omitempty"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

type stopTypingPayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

type taskMovedPayload struct {
	ProjectID  string `json:"projectId"`
	TaskID     string `json:"taskId"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
	MovedBy    string `json:"movedBy"`
}

// RoomMember is one entry in a project room's member list.
type RoomMember struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	SocketID string    `json:"socketId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RosterEntry is one entry in the process-wide online roster.
type RosterEntry struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	SocketID    string    `json:"socketId"`
	Status      Status    `json:"status"`
	JoinedAt    time.Time `json:"joinedAt"`
	CurrentTask string    `json:"currentTask,omitempty"`
}

// TaskPresence is the delta broadcast when a user focuses or leaves a task.
type TaskPresence struct {
	TaskID   string `json:"taskId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Action   string `json:"action"`
}

type taskActivity struct {
	Type       string `json:"type"`
	TaskID     string `json:"taskId"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
	MovedBy    string `json:"movedBy"`
	Timestamp  string `json:"timestamp"`
}

type typingUpdate struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	TaskID   string `json:"taskId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

func newMessage(event string, v any) *Message {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal broadcast payload", "event", event, "error", err)
		return nil
	}
	return &Message{Event: event, Data: data}
}
