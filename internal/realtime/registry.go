package realtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/nexus-im/bazaar/internal/identity"
)

var (
	ErrUnknownConnection = errors.New("connection is not registered")
	ErrAlreadyIdentified = errors.New("connection is already identified as another user")
)

// RoomName is the membership key for a product conversation.
func RoomName(topic identity.ID) string {
	return "product-" + topic.String()
}

type session struct {
	client *Client
	user   identity.ID
	rooms  map[string]struct{}
}

// Registry is the process-local session state: live connections, the
// directory from user to connection, and room membership. At most one
// connection is bound to a user at any time; the latest identify wins.
//
// Nothing here is persisted. A restart starts from an empty registry and
// clients re-identify and re-join.
type Registry struct {
	mu sync.RWMutex

	// conn id -> session
	sessions map[string]*session
	// user -> conn id
	directory map[identity.ID]string
	// room -> conn id -> client
	rooms map[string]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]*session),
		directory: make(map[identity.ID]string),
		rooms:     make(map[string]map[string]*Client),
	}
}

// Add tracks a newly connected client.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[c.ID]; ok {
		return
	}
	r.sessions[c.ID] = &session{client: c, rooms: make(map[string]struct{})}
}

// Identify binds user to c, replacing any binding the user had to another
// connection. It reports whether the directory changed; binding a user to the
// connection it already points at is a no-op.
func (r *Registry) Identify(c *Client, user identity.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[c.ID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if !s.user.IsZero() && s.user != user {
		return false, ErrAlreadyIdentified
	}
	s.user = user
	if r.directory[user] == c.ID {
		return false, nil
	}
	r.directory[user] = c.ID
	return true, nil
}

// Resolve returns the live connection bound to user.
func (r *Registry) Resolve(user identity.ID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.directory[user]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	return s.client, true
}

// UserOf returns the user c identified as, if any.
func (r *Registry) UserOf(c *Client) (identity.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[c.ID]
	if !ok || s.user.IsZero() {
		return "", false
	}
	return s.user, true
}

// Join adds c to the topic's room. A connection may be in many rooms.
func (r *Registry) Join(c *Client, topic identity.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[c.ID]
	if !ok {
		return ErrUnknownConnection
	}
	room := RoomName(topic)
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[c.ID] = c
	s.rooms[room] = struct{}{}
	return nil
}

// Leave removes c from the topic's room.
func (r *Registry) Leave(c *Client, topic identity.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := RoomName(topic)
	if s, ok := r.sessions[c.ID]; ok {
		delete(s.rooms, room)
	}
	r.dropMember(room, c.ID)
}

// Remove forgets c: its rooms, and every directory entry pointing at it. The
// users whose binding was released are returned. ok is false when c was not
// registered.
func (r *Registry) Remove(c *Client) (released []identity.ID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[c.ID]
	if !ok {
		return nil, false
	}
	for room := range s.rooms {
		r.dropMember(room, c.ID)
	}
	delete(r.sessions, c.ID)

	// Sweep by value as well as by the session's own user so a stale or
	// duplicate binding cannot outlive the connection.
	for user, connID := range r.directory {
		if connID == c.ID {
			delete(r.directory, user)
			released = append(released, user)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
	return released, true
}

// RoomMembers snapshots the connections in the topic's room.
func (r *Registry) RoomMembers(topic identity.ID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[RoomName(topic)]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// RoomsOf lists the rooms c has joined.
func (r *Registry) RoomsOf(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[c.ID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// All snapshots every live connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.client)
	}
	return out
}

// Len is the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) dropMember(room, connID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
