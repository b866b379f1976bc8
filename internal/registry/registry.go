// Package registry implements the authoritative room-membership state
// machine: rooms, members, and the global user-to-socket index, under
// join/rejoin/leave/disconnect. See spec section 4.1.
//
// Every operation here is a pure state mutation that returns an outcome
// struct; none of them perform socket I/O. This keeps the registry lock
// from ever being held across a blocking write, per the concurrency model:
// derivation of recipients and the actual sends are separable.
package registry

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wireproto"
)

type (
	UserID   = wireproto.UserID
	SocketID = wireproto.SocketID
	RoomID   = wireproto.RoomID
)

// Member is a single room participant bound to a transport socket.
type Member struct {
	UserID   UserID
	SocketID SocketID
	Nickname string
}

// room is an ordered mapping UserID -> Member; order is preserved only for
// deterministic snapshot output, not because the spec requires it.
type room struct {
	mu     sync.Mutex
	order  []UserID
	byUser map[UserID]*Member
}

func newRoom() *room {
	return &room{byUser: make(map[UserID]*Member)}
}

// put inserts or overwrites the member keyed by UserID, reporting whether
// an entry already existed (a rejoin).
func (r *room) put(m Member) (rejoin bool) {
	if _, ok := r.byUser[m.UserID]; ok {
		rejoin = true
	} else {
		r.order = append(r.order, m.UserID)
	}
	cp := m
	r.byUser[m.UserID] = &cp
	return rejoin
}

func (r *room) remove(u UserID) (Member, bool) {
	m, ok := r.byUser[u]
	if !ok {
		return Member{}, false
	}
	delete(r.byUser, u)
	for i, id := range r.order {
		if id == u {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *m, true
}

func (r *room) snapshot() []Member {
	out := make([]Member, 0, len(r.order))
	for _, u := range r.order {
		out = append(out, *r.byUser[u])
	}
	return out
}

func (r *room) size() int { return len(r.byUser) }

// Registry is the authoritative RoomID -> Room map plus the global
// UserID -> SocketID index used to route signaling payloads.
type Registry struct {
	roomsMu sync.Mutex
	rooms   map[RoomID]*room

	indexMu sync.Mutex
	index   map[UserID]SocketID
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		rooms: make(map[RoomID]*room),
		index: make(map[UserID]SocketID),
	}
}

func (reg *Registry) getOrCreateRoom(id RoomID) *room {
	reg.roomsMu.Lock()
	defer reg.roomsMu.Unlock()
	rm, ok := reg.rooms[id]
	if !ok {
		rm = newRoom()
		reg.rooms[id] = rm
		util.Stats.AddRoomCreated()
	}
	return rm
}

func (reg *Registry) getRoom(id RoomID) (*room, bool) {
	reg.roomsMu.Lock()
	defer reg.roomsMu.Unlock()
	rm, ok := reg.rooms[id]
	return rm, ok
}

// destroyIfEmpty removes the room from the registry if it is still empty
// and still the room currently registered under id.
func (reg *Registry) destroyIfEmpty(id RoomID, rm *room) bool {
	reg.roomsMu.Lock()
	defer reg.roomsMu.Unlock()
	cur, ok := reg.rooms[id]
	if !ok || cur != rm || cur.size() != 0 {
		return false
	}
	delete(reg.rooms, id)
	util.Stats.AddRoomDestroyed()
	return true
}

// JoinOutcome is the result of Join; Members is the full room snapshot
// after the join, including the joiner (see spec open question: the
// existing-participants delivery is not filtered server-side).
type JoinOutcome struct {
	Rejoin      bool
	Members     []Member
	MemberCount int
}

// Join inserts user into room bound to socket. A second join for the same
// (room, user) pair over a different socket is a rejoin: the prior entry
// is replaced in place and its old socket is simply forgotten (the
// transport layer eventually reaps it; the registry does not close it).
func (reg *Registry) Join(roomID RoomID, user UserID, nickname string, socket SocketID) JoinOutcome {
	rm := reg.getOrCreateRoom(roomID)

	rm.mu.Lock()
	rejoin := rm.put(Member{UserID: user, SocketID: socket, Nickname: nickname})
	members := rm.snapshot()
	count := rm.size()
	rm.mu.Unlock()

	reg.indexMu.Lock()
	reg.index[user] = socket
	reg.indexMu.Unlock()

	if rejoin {
		util.Stats.AddRejoin()
	} else {
		util.Stats.AddJoin()
	}

	return JoinOutcome{Rejoin: rejoin, Members: members, MemberCount: count}
}

// LeaveOutcome is the result of Leave.
type LeaveOutcome struct {
	Existed          bool
	RemainingMembers []Member
	MemberCount      int
	RoomDestroyed    bool
}

// Leave removes user from room. The global index entry for user is removed
// only if it still points at socket — the same socket that sent the
// leave-room event. This means a user who rejoined under a new socket and
// then receives a stray leave-room from their old, now-orphaned socket
// will NOT have their current index entry clobbered. It also means a leave
// sent by a socket that is not the user's current one does not touch the
// index at all, even though the room membership is still removed
// unconditionally. This is documented behavior, not a bug — see spec open
// questions.
func (reg *Registry) Leave(roomID RoomID, user UserID, socket SocketID) LeaveOutcome {
	rm, ok := reg.getRoom(roomID)
	if !ok {
		return LeaveOutcome{}
	}

	rm.mu.Lock()
	_, existed := rm.remove(user)
	members := rm.snapshot()
	count := rm.size()
	rm.mu.Unlock()

	if !existed {
		return LeaveOutcome{Existed: false}
	}
	util.Stats.AddLeave()

	reg.indexMu.Lock()
	if reg.index[user] == socket {
		delete(reg.index, user)
	}
	reg.indexMu.Unlock()

	destroyed := count == 0 && reg.destroyIfEmpty(roomID, rm)

	return LeaveOutcome{Existed: true, RemainingMembers: members, MemberCount: count, RoomDestroyed: destroyed}
}

// RequestMembers returns the current member snapshot for room, or nil if
// the room does not exist.
func (reg *Registry) RequestMembers(roomID RoomID) []Member {
	rm, ok := reg.getRoom(roomID)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshot()
}

// DisconnectedMembership describes one (room, user) pair that was removed
// by a Disconnect sweep.
type DisconnectedMembership struct {
	Room             RoomID
	User             UserID
	RemainingMembers []Member
	MemberCount      int
	RoomDestroyed    bool
}

// Disconnect sweeps every room for members bound to socket and removes
// them, equivalent to calling Leave for every (room, user) pair currently
// pinned to socket. A single socket may legitimately hold memberships in
// several rooms (join-room never evicts prior-room membership — see spec
// open questions) and, in principle, more than one user identity within
// the same room; both cases are handled.
func (reg *Registry) Disconnect(socket SocketID) []DisconnectedMembership {
	reg.roomsMu.Lock()
	rooms := make(map[RoomID]*room, len(reg.rooms))
	maps.Copy(rooms, reg.rooms)
	reg.roomsMu.Unlock()

	var out []DisconnectedMembership
	for id, rm := range rooms {
		rm.mu.Lock()
		var matched []UserID
		for _, u := range rm.order {
			if rm.byUser[u].SocketID == socket {
				matched = append(matched, u)
			}
		}
		for _, u := range matched {
			rm.remove(u)
		}
		members := rm.snapshot()
		count := rm.size()
		rm.mu.Unlock()

		if len(matched) == 0 {
			continue
		}

		reg.indexMu.Lock()
		for _, u := range matched {
			if reg.index[u] == socket {
				delete(reg.index, u)
			}
		}
		reg.indexMu.Unlock()

		destroyed := count == 0 && reg.destroyIfEmpty(id, rm)

		for _, u := range matched {
			util.Stats.AddDisconnect()
			out = append(out, DisconnectedMembership{
				Room:             id,
				User:             u,
				RemainingMembers: members,
				MemberCount:      count,
				RoomDestroyed:    destroyed,
			})
		}
	}

	return out
}

// LookupSocket returns the socket currently bound to user in the global
// index, used by the signal router.
func (reg *Registry) LookupSocket(user UserID) (SocketID, bool) {
	reg.indexMu.Lock()
	defer reg.indexMu.Unlock()
	s, ok := reg.index[user]
	return s, ok
}

// InAnyRoom reports whether user currently belongs to at least one room,
// used only for the router's best-effort logging check.
func (reg *Registry) InAnyRoom(user UserID) bool {
	reg.roomsMu.Lock()
	rooms := make([]*room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		rooms = append(rooms, rm)
	}
	reg.roomsMu.Unlock()

	for _, rm := range rooms {
		rm.mu.Lock()
		_, ok := rm.byUser[user]
		rm.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// Snapshot describes one room for the HTTP listing surface.
type Snapshot struct {
	RoomID           RoomID
	ParticipantCount int
	Members          []Member
}

// AllRooms returns a snapshot of every currently non-empty room.
func (reg *Registry) AllRooms() []Snapshot {
	reg.roomsMu.Lock()
	rooms := make(map[RoomID]*room, len(reg.rooms))
	maps.Copy(rooms, reg.rooms)
	reg.roomsMu.Unlock()

	out := make([]Snapshot, 0, len(rooms))
	for id, rm := range rooms {
		rm.mu.Lock()
		members := rm.snapshot()
		rm.mu.Unlock()
		out = append(out, Snapshot{RoomID: id, ParticipantCount: len(members), Members: members})
	}
	return out
}

// RoomSnapshot returns the snapshot for a single room, or ok=false if it
// does not exist.
func (reg *Registry) RoomSnapshot(id RoomID) (Snapshot, bool) {
	rm, ok := reg.getRoom(id)
	if !ok {
		return Snapshot{}, false
	}
	rm.mu.Lock()
	members := rm.snapshot()
	rm.mu.Unlock()
	return Snapshot{RoomID: id, ParticipantCount: len(members), Members: members}, true
}
