package presence

// Dispatcher computes the audience for each state change and fans the
// message out. Room changes go to that room's subscribers; roster and task
// changes go to every connection.
type Dispatcher struct {
	registry *Registry
	rooms    *RoomTable
}

func NewDispatcher(registry *Registry, rooms *RoomTable) *Dispatcher {
	return &Dispatcher{registry: registry, rooms: rooms}
}

func (d *Dispatcher) ToRoom(projectID, event string, v any) {
	msg := newMessage(event, v)
	if msg == nil {
		return
	}
	for _, c := range d.rooms.Subscribers(projectID) {
		c.Send(msg)
	}
}

// ToRoomExcept relays to the room, skipping the originating connection. Used
// for typing indicators, where the sender already knows.
func (d *Dispatcher) ToRoomExcept(projectID, exceptConnID, event string, v any) {
	msg := newMessage(event, v)
	if msg == nil {
		return
	}
	for _, c := range d.rooms.Subscribers(projectID) {
		if c.ID() == exceptConnID {
			continue
		}
		c.Send(msg)
	}
}

func (d *Dispatcher) ToAll(event string, v any) {
	msg := newMessage(event, v)
	if msg == nil {
		return
	}
	for _, c := range d.registry.All() {
		c.Send(msg)
	}
}
