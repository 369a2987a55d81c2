// Package presence tracks which users are connected and through how many
// connections. A Registry is not safe for concurrent use; it is owned by a
// single goroutine (the websocket hub loop).
package presence

import (
	"sort"
	"time"

	"devcollab/internal/models"
)

// Transition describes how a register or unregister changed a user's
// aggregated presence.
type Transition int

const (
	Unchanged Transition = iota
	Online
	Offline
)

func (t Transition) String() string {
	switch t {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unchanged"
	}
}

// Record is the aggregated presence of one user. It exists only while the
// user has at least one live connection.
type Record struct {
	UserID      string
	Profile     models.Profile
	Connections map[string]time.Time // connection id -> connected at
	LastSeen    time.Time
}

type Registry struct {
	users map[string]*Record
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*Record),
		now:   time.Now,
	}
}

// Register adds connID to the user's active set. It returns Online when this
// is the user's first live connection.
func (r *Registry) Register(connID, userID string, profile models.Profile) Transition {
	now := r.now()
	rec, ok := r.users[userID]
	if !ok {
		rec = &Record{
			UserID:      userID,
			Connections: make(map[string]time.Time),
		}
		r.users[userID] = rec
	}
	rec.Profile = profile
	rec.LastSeen = now
	if _, dup := rec.Connections[connID]; dup {
		return Unchanged
	}
	rec.Connections[connID] = now

	if !ok {
		return Online
	}
	return Unchanged
}

// Unregister removes connID from the user's active set. The record is deleted
// and Offline returned once the set is empty. Unknown ids are a no-op.
func (r *Registry) Unregister(connID, userID string) Transition {
	rec, ok := r.users[userID]
	if !ok {
		return Unchanged
	}
	if _, ok := rec.Connections[connID]; !ok {
		return Unchanged
	}

	delete(rec.Connections, connID)
	rec.LastSeen = r.now()

	if len(rec.Connections) > 0 {
		return Unchanged
	}
	delete(r.users, userID)
	return Offline
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.users[userID]
	return ok
}

// Profile returns the cached profile of an online user.
func (r *Registry) Profile(userID string) (models.Profile, bool) {
	rec, ok := r.users[userID]
	if !ok {
		return models.Profile{}, false
	}
	return rec.Profile, true
}

// ListOnline returns the profiles of all online users sorted by name.
func (r *Registry) ListOnline() []models.Profile {
	profiles := make([]models.Profile, 0, len(r.users))
	for _, rec := range r.users {
		profiles = append(profiles, rec.Profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Name == profiles[j].Name {
			return profiles[i].ID < profiles[j].ID
		}
		return profiles[i].Name < profiles[j].Name
	})
	return profiles
}

// Connections returns the number of live connections held by userID.
func (r *Registry) Connections(userID string) int {
	rec, ok := r.users[userID]
	if !ok {
		return 0
	}
	return len(rec.Connections)
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	return len(r.users)
}
