// Package rooms keeps the many-to-many mapping between connections and
// logical broadcast rooms. A Manager is not safe for concurrent use; the
// websocket hub owns it and mutates it from its event loop only.
package rooms

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies a room as "<kind>:<id>". Keys are opaque to the manager.
type Key string

type Kind string

const (
	KindUser      Kind = "user"
	KindWorkspace Kind = "workspace"
	KindProject   Kind = "project"
	KindTask      Kind = "task"
	KindChat      Kind = "chat"
)

func NewKey(kind Kind, id string) Key {
	return Key(string(kind) + ":" + id)
}

func User(userID string) Key           { return NewKey(KindUser, userID) }
func Workspace(workspaceID string) Key { return NewKey(KindWorkspace, workspaceID) }
func Project(projectID string) Key     { return NewKey(KindProject, projectID) }
func Task(taskID string) Key           { return NewKey(KindTask, taskID) }
func Chat(projectID string) Key        { return NewKey(KindChat, projectID) }

func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindWorkspace, KindProject, KindTask, KindChat:
		return true
	}
	return false
}

// Split returns the kind and id parts of the key.
func (k Key) Split() (Kind, string) {
	kind, id, _ := strings.Cut(string(k), ":")
	return Kind(kind), id
}

// ParseKey validates a textual room key such as "chat:p1".
func ParseKey(s string) (Key, error) {
	key := Key(s)
	kind, id := key.Split()
	if !kind.Valid() {
		return "", fmt.Errorf("unknown room kind %q", kind)
	}
	if id == "" {
		return "", fmt.Errorf("room %q has no id", s)
	}
	return key, nil
}

type Manager struct {
	// room -> set of connection ids
	rooms map[Key]map[string]struct{}
	// connection id -> set of rooms
	joined map[string]map[Key]struct{}
}

func NewManager() *Manager {
	return &Manager{
		rooms:  make(map[Key]map[string]struct{}),
		joined: make(map[string]map[Key]struct{}),
	}
}

// Join adds connID to the room. It returns false if it was already a member.
func (m *Manager) Join(connID string, key Key) bool {
	members, ok := m.rooms[key]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[key] = members
	}
	if _, ok := members[connID]; ok {
		return false
	}
	members[connID] = struct{}{}

	keys, ok := m.joined[connID]
	if !ok {
		keys = make(map[Key]struct{})
		m.joined[connID] = keys
	}
	keys[key] = struct{}{}
	return true
}

// Leave removes connID from the room. It returns false if it was not a member.
func (m *Manager) Leave(connID string, key Key) bool {
	members, ok := m.rooms[key]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, key)
	}

	if keys, ok := m.joined[connID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(m.joined, connID)
		}
	}
	return true
}

// LeaveAll removes connID from every room it joined and returns those rooms.
func (m *Manager) LeaveAll(connID string) []Key {
	keys := m.Rooms(connID)
	for _, key := range keys {
		m.Leave(connID, key)
	}
	return keys
}

// Rooms returns the rooms connID has joined, sorted.
func (m *Manager) Rooms(connID string) []Key {
	keys := make([]Key, 0, len(m.joined[connID]))
	for key := range m.joined[connID] {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Connections returns the connection ids joined to the room, sorted.
func (m *Manager) Connections(key Key) []string {
	ids := make([]string, 0, len(m.rooms[key]))
	for id := range m.rooms[key] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Each calls fn for every connection in the room except exclude.
func (m *Manager) Each(key Key, exclude string, fn func(connID string)) {
	for id := range m.rooms[key] {
		if id == exclude {
			continue
		}
		fn(id)
	}
}

// Size returns the number of connections in the room.
func (m *Manager) Size(key Key) int {
	return len(m.rooms[key])
}

// Count returns the number of non-empty rooms.
func (m *Manager) Count() int {
	return len(m.rooms)
}
