package game

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Junith-K/guess-the-imposter/internal/format"
	"github.com/Junith-K/guess-the-imposter/internal/obslog"
	"github.com/Junith-K/guess-the-imposter/internal/questions"
)

// Deps are the shared collaborators injected into every session.
type Deps struct {
	Messenger Messenger
	Catalog   *questions.Catalog
	Formatter *format.Formatter
	Recorder  Recorder
}

// Registry maps rooms to their single live session. Sessions unregister
// themselves on finish, so lookup after end yields ErrNoSession naturally.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session for the room. One session per room.
func (r *Registry) Create(room string, host Player, st Settings) (*Session, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[room]; ok {
		return nil, ErrSessionExists
	}
	s := newSession(room, host, st, r.deps, r.Remove)
	r.sessions[room] = s
	obslog.L().Info("session_create",
		zap.String("session_id", s.ID),
		zap.String("room", room),
		zap.String("host_id", host.ID),
	)
	return s, nil
}

// Get returns the live session for the room, if any.
func (r *Registry) Get(room string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[room]
	return s, ok
}

// Remove unregisters the room's session. Safe to call for an absent room.
func (r *Registry) Remove(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[room]; ok {
		delete(r.sessions, room)
		obslog.L().Info("session_remove", zap.String("room", room))
	}
}

// HandleDeparture forwards a leave or kick feed event to the room's session.
func (r *Registry) HandleDeparture(ctx context.Context, room, userID string) {
	if s, ok := r.Get(room); ok {
		s.HandleDeparture(ctx, userID)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
