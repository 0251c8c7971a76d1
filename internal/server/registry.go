package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	errRoomNotFound = errors.New("room not found")
	errCodeTaken    = errors.New("code already exists")
)

// Registry owns every Room in the process, keyed by room code. All reads and
// writes of room state happen under its mutex; the Update closure pattern
// gives each handler an uninterrupted view of the room it mutates.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// CreateRoom allocates a room with the given host seated and connected. A
// requested code that is already taken is an error; no silent fallback. An
// empty requested code gets a fresh generated one.
func (reg *Registry) CreateRoom(hostName, requestedCode string) (*Room, *Player, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := requestedCode
	if code != "" {
		if _, taken := reg.rooms[code]; taken {
			return nil, nil, errCodeTaken
		}
	}
	for code == "" {
		candidate := newRoomCode()
		if _, taken := reg.rooms[candidate]; !taken {
			code = candidate
		}
	}

	host := newPlayer(hostName)
	room := &Room{
		Code:       code,
		HostID:     host.ID,
		Players:    []*Player{host},
		Phase:      phaseLobby,
		Settings:   defaultSettings(),
		TurnIndex:  -1,
		UsedMovies: map[string]struct{}{},
		CreatedAt:  timeNowUTC(),
	}
	room.resetRoundState()
	reg.rooms[code] = room
	return room, host, nil
}

func newPlayer(name string) *Player {
	return &Player{
		ID:        uuid.NewString(),
		Name:      name,
		Connected: true,
	}
}

func (reg *Registry) Get(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[code]
	return room, ok
}

// Update runs fn with exclusive access to the room. An error from fn leaves
// whatever fn already changed in place, matching the original's in-place
// mutation model; fn is expected to validate before mutating.
func (reg *Registry) Update(code string, fn func(*Room) error) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[code]
	if !ok {
		return nil, errRoomNotFound
	}
	if err := fn(room); err != nil {
		return nil, err
	}
	return room, nil
}

// View runs fn with shared access to the room, for building outbound
// snapshots without giving the pointer away. fn must not mutate.
func (reg *Registry) View(code string, fn func(*Room)) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[code]
	if !ok {
		return false
	}
	fn(room)
	return true
}

// Remove drops the room from the registry. Timer cancellation and client
// notification are the caller's job (see Server.closeRoom).
func (reg *Registry) Remove(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[code]
	if ok {
		delete(reg.rooms, code)
	}
	return room, ok
}

func (reg *Registry) Codes() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	codes := make([]string, 0, len(reg.rooms))
	for code := range reg.rooms {
		codes = append(codes, code)
	}
	return codes
}
