// Package registry tracks live connection sessions and routes events to them.
//
// Every session is joined to the room of its user so that a user is a single
// logical address no matter how many connections they hold. Chat rooms are
// joined explicitly. Delivery is best effort: an event for a user with no
// live session, or for a session whose outbox is full, is dropped.
package registry

import (
	"sync"

	"github.com/cespare/xxhash"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"

	"uk.co.dudmesh.parley/internal/model"
)

type Event struct {
	Name string      `json:"event"`
	Ack  string      `json:"ack,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func UserRoom(handle model.Handle) string {
	return "user:" + string(handle)
}

func ChatRoom(chatID model.ChatID) string {
	return "chat:" + string(chatID)
}

type Session struct {
	ID   string
	User *model.User

	outbox    chan Event
	done      chan struct{}
	closeOnce sync.Once

	// mu is taken before any shard lock
	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

// Outbox is drained by the connection writer.
func (s *Session) Outbox() <-chan Event {
	return s.outbox
}

// Done is closed once the session is unregistered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Emit queues an event for this session only.
func (s *Session) Emit(name string, data interface{}) bool {
	return s.push(Event{Name: name, Data: data})
}

// Reply queues the acknowledgement for an ack-bearing inbound event. Unlike
// other traffic an ack is never dropped: Reply waits for room in the outbox
// and only gives up once the session is unregistered.
func (s *Session) Reply(ack string, data interface{}) bool {
	ev := Event{Name: "ack", Ack: ack, Data: data}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbox <- ev:
		return true
	case <-s.done:
		log.Warnf("registry: ack %s for %s (%s) lost, session closed", ack, s.User.Handle, s.ID)
		return false
	}
}

func (s *Session) push(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbox <- ev:
		return true
	default:
		log.Warnf("registry: outbox full for %s (%s), dropping %s", s.User.Handle, s.ID, ev.Name)
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

const shardCount = 32

// shard holds the membership of the rooms whose name hashes to it.
type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

func (sh *shard) add(s *Session, room string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	members, ok := sh.rooms[room]
	if !ok {
		members = map[*Session]struct{}{}
		sh.rooms[room] = members
	}
	members[s] = struct{}{}
}

func (sh *shard) remove(s *Session, room string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	members, ok := sh.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(sh.rooms, room)
	}
}

type Registry struct {
	shards     [shardCount]*shard
	mu         sync.RWMutex
	sessions   map[string]*Session
	bufferSize int
}

func New(bufferSize int) *Registry {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	r := &Registry{
		sessions:   map[string]*Session{},
		bufferSize: bufferSize,
	}
	for i := range r.shards {
		r.shards[i] = &shard{rooms: map[string]map[*Session]struct{}{}}
	}
	return r
}

func (r *Registry) shardFor(room string) *shard {
	return r.shards[xxhash.Sum64String(room)%shardCount]
}

// NewSession creates an unregistered session for an admitted user.
func (r *Registry) NewSession(user *model.User) *Session {
	return &Session{
		ID:     cuid2.Generate(),
		User:   user,
		outbox: make(chan Event, r.bufferSize),
		done:   make(chan struct{}),
		rooms:  map[string]struct{}{},
	}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.Join(s, UserRoom(s.User.Handle))
	log.Infof("registry: %s connected (%s), %d sessions", s.User.Handle, s.ID, count)
}

func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.ID)
	count := len(r.sessions)
	r.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	for room := range s.rooms {
		r.shardFor(room).remove(s, room)
	}
	s.rooms = map[string]struct{}{}
	s.mu.Unlock()

	s.close()
	log.Infof("registry: %s disconnected (%s), %d sessions", s.User.Handle, s.ID, count)
}

// Join adds the session to a room. It is a no-op once the session is unregistered.
func (r *Registry) Join(s *Session, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.rooms[room] = struct{}{}
	r.shardFor(room).add(s, room)
}

func (r *Registry) Leave(s *Session, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; !ok {
		return
	}
	delete(s.rooms, room)
	r.shardFor(room).remove(s, room)
}

// Broadcast queues the event for every session in room except the given one
// and returns how many sessions accepted it.
func (r *Registry) Broadcast(room, name string, data interface{}, except *Session) int {
	sh := r.shardFor(room)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	delivered := 0
	for s := range sh.rooms[room] {
		if s == except {
			continue
		}
		if s.push(Event{Name: name, Data: data}) {
			delivered++
		}
	}
	return delivered
}

// SendToUser addresses every live session of the user. It is a no-op when
// the user is offline.
func (r *Registry) SendToUser(handle model.Handle, name string, data interface{}, except *Session) int {
	return r.Broadcast(UserRoom(handle), name, data, except)
}

func (r *Registry) Online(handle model.Handle) bool {
	room := UserRoom(handle)
	sh := r.shardFor(room)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.rooms[room]) > 0
}

func (r *Registry) InRoom(s *Session, room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok
}

func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
