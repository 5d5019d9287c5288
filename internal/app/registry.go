package app

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dkeye/Together/internal/core"
	"github.com/dkeye/Together/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyInRoom = errors.New("already in room")

type room struct {
	members []domain.ConnID // join order
}

// Registry maps room codes to member sets. index is the reverse map and is
// always updated in the same critical section as rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*room
	index map[domain.ConnID]domain.RoomCode
}

var _ core.RoomRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomCode]*room),
		index: make(map[domain.ConnID]domain.RoomCode),
	}
}

// Join adds id to the room, creating it if needed, and returns the members
// that were present before the add.
func (r *Registry) Join(code domain.RoomCode, id domain.ConnID) ([]domain.ConnID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.index[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInRoom, cur)
	}
	rm, ok := r.rooms[code]
	if !ok {
		rm = &room{}
		r.rooms[code] = rm
		log.Info().Str("module", "app.registry").Str("room", string(code)).Msg("room created")
	}
	existing := slices.Clone(rm.members)
	rm.members = append(rm.members, id)
	r.index[id] = code
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(code)).Int("members", len(rm.members)).Msg("joined room")
	return existing, nil
}

// Leave removes id from its room. The room is dropped once empty. It reports
// false when id was in no room.
func (r *Registry) Leave(id domain.ConnID) (core.Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.index[id]
	if !ok {
		return core.Departure{}, false
	}
	rm, ok := r.rooms[code]
	if !ok {
		panic(fmt.Sprintf("app.registry: %s indexed into missing room %q", id, code))
	}
	i := slices.Index(rm.members, id)
	if i < 0 {
		panic(fmt.Sprintf("app.registry: %s indexed into room %q but not a member", id, code))
	}
	rm.members = slices.Delete(rm.members, i, i+1)
	delete(r.index, id)

	if len(rm.members) == 0 {
		delete(r.rooms, code)
		log.Info().Str("module", "app.registry").Str("room", string(code)).Msg("room removed")
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(code)).Int("remaining", len(rm.members)).Msg("left room")
	return core.Departure{Room: code, Remaining: slices.Clone(rm.members)}, true
}

func (r *Registry) MembersOf(code domain.RoomCode) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil
	}
	return slices.Clone(rm.members)
}

func (r *Registry) RoomOf(id domain.ConnID) (domain.RoomCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.index[id]
	return code, ok
}

func (r *Registry) List() []core.RoomInfo {
	r.mu.RLock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for code, rm := range r.rooms {
		out = append(out, core.RoomInfo{Code: code, MemberCount: len(rm.members)})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
