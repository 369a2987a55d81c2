package ws

import (
	"context"
	"log/slog"
	"sort"

	"devcollab/internal/models"
	"devcollab/internal/presence"
	"devcollab/internal/rooms"
)

const defaultOutboundBuffer = 100

type client struct {
	connID  string
	userID  string
	profile models.Profile
	out     chan models.ServerEvent
}

// Hub owns the connection registry and room memberships. All of its state
// is touched only by the Run goroutine; other goroutines submit closures.
type Hub struct {
	ops  chan func()
	done chan struct{}

	registry *presence.Registry
	rooms    *rooms.Manager
	clients  map[string]*client

	bufferSize int
}

func NewHub() *Hub {
	return &Hub{
		ops:        make(chan func(), 256),
		done:       make(chan struct{}),
		registry:   presence.NewRegistry(),
		rooms:      rooms.NewManager(),
		clients:    make(map[string]*client),
		bufferSize: defaultOutboundBuffer,
	}
}

// Run processes hub operations until ctx is done. On exit every outbound
// channel is closed so connections wind down.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for id, c := range h.clients {
			close(c.out)
			delete(h.clients, id)
		}
	}()

	for {
		select {
		case op := <-h.ops:
			op()
		case <-ctx.Done():
			return nil
		}
	}
}

// do queues fn on the hub loop. It reports false once the hub has stopped.
func (h *Hub) do(fn func()) bool {
	select {
	case h.ops <- fn:
		return true
	case <-h.done:
		return false
	}
}

// call runs fn on the hub loop and waits for it to finish.
func (h *Hub) call(fn func()) bool {
	finished := make(chan struct{})
	if !h.do(func() {
		fn()
		close(finished)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-h.done:
		return false
	}
}

// Register adds a connection for user and returns the channel its outbound
// events arrive on. The connection joins its user room. If this is the
// user's first connection everyone else is told the user came online.
func (h *Hub) Register(connID string, user models.User) (<-chan models.ServerEvent, bool) {
	var out chan models.ServerEvent
	ok := h.call(func() {
		if _, exists := h.clients[connID]; exists {
			return
		}
		c := &client{
			connID:  connID,
			userID:  user.ID,
			profile: user.Profile(),
			out:     make(chan models.ServerEvent, h.bufferSize),
		}
		h.clients[connID] = c
		out = c.out
		h.rooms.Join(connID, rooms.User(user.ID))

		if h.registry.Register(connID, user.ID, c.profile) == presence.Online {
			profile := c.profile
			h.sendAll(models.ServerEvent{
				Event: models.EventUserOnline,
				Data:  models.PresencePayload{UserID: user.ID, User: &profile},
			}, connID)
		}
	})
	return out, ok && out != nil
}

// Unregister removes the connection from all rooms and closes its outbound
// channel. The user goes offline when this was their last connection.
func (h *Hub) Unregister(connID string) {
	h.call(func() {
		c, ok := h.clients[connID]
		if !ok {
			return
		}
		h.rooms.LeaveAll(connID)
		delete(h.clients, connID)
		close(c.out)

		profile, known := h.registry.Profile(c.userID)
		if !known {
			profile = c.profile
		}
		if h.registry.Unregister(connID, c.userID) == presence.Offline {
			h.sendAll(models.ServerEvent{
				Event: models.EventUserOffline,
				Data:  models.PresencePayload{UserID: c.userID, User: &profile},
			}, "")
			return
		}
		slog.Debug("connection closed", "conn_id", connID, "user_id", c.userID, "remaining", h.registry.Connections(c.userID))
	})
}

func (h *Hub) Join(connID string, key rooms.Key) bool {
	var changed bool
	h.call(func() {
		if _, ok := h.clients[connID]; ok {
			changed = h.rooms.Join(connID, key)
		}
	})
	return changed
}

func (h *Hub) Leave(connID string, key rooms.Key) bool {
	var changed bool
	h.call(func() {
		changed = h.rooms.Leave(connID, key)
	})
	return changed
}

// Broadcast queues event for every connection in the room except
// excludeConnID. It does not wait for delivery.
func (h *Hub) Broadcast(key rooms.Key, event string, payload any, excludeConnID string) {
	ev := models.ServerEvent{Event: event, Data: payload}
	h.do(func() {
		h.rooms.Each(key, excludeConnID, func(connID string) {
			h.send(h.clients[connID], ev)
		})
	})
}

// MembersOf returns the distinct users with a connection in the room,
// sorted by name.
func (h *Hub) MembersOf(key rooms.Key) []models.Profile {
	members := []models.Profile{}
	h.call(func() {
		seen := make(map[string]struct{})
		for _, connID := range h.rooms.Connections(key) {
			c, ok := h.clients[connID]
			if !ok {
				continue
			}
			if _, dup := seen[c.userID]; dup {
				continue
			}
			seen[c.userID] = struct{}{}
			members = append(members, c.profile)
		}
	})
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID < members[j].ID
	})
	return members
}

func (h *Hub) IsOnline(userID string) bool {
	var online bool
	h.call(func() { online = h.registry.IsOnline(userID) })
	return online
}

func (h *Hub) OnlineUsers() []models.Profile {
	var users []models.Profile
	h.call(func() { users = h.registry.ListOnline() })
	return users
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	var n int
	h.call(func() { n = len(h.clients) })
	return n
}

// OnlineCount returns the number of distinct users with at least one live
// connection.
func (h *Hub) OnlineCount() int {
	var n int
	h.call(func() { n = h.registry.Count() })
	return n
}

// UserConnections returns the number of live connections held by userID.
func (h *Hub) UserConnections(userID string) int {
	var n int
	h.call(func() { n = h.registry.Connections(userID) })
	return n
}

// RoomSize returns the number of connections joined to the room.
func (h *Hub) RoomSize(key rooms.Key) int {
	var n int
	h.call(func() { n = h.rooms.Size(key) })
	return n
}

// RoomCount returns the number of rooms with at least one connection.
func (h *Hub) RoomCount() int {
	var n int
	h.call(func() { n = h.rooms.Count() })
	return n
}

func (h *Hub) sendAll(ev models.ServerEvent, excludeConnID string) {
	for id, c := range h.clients {
		if id != excludeConnID {
			h.send(c, ev)
		}
	}
}

func (h *Hub) send(c *client, ev models.ServerEvent) {
	if c == nil {
		return
	}
	select {
	case c.out <- ev:
	default:
		slog.Warn("outbound buffer full, dropping event", "conn_id", c.connID, "user_id", c.userID, "event", ev.Event)
	}
}
