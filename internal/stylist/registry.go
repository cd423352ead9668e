package stylist

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Registry maps conversation ids to sessions so concurrent conversations
// never share a context window
type Registry struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session under a fresh sortable id
func (r *Registry) Create() *Session {
	s := NewSession(ulid.Make().String(), r.deps)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetOrCreate returns the session for id, creating it and replaying its
// archived history when it is not loaded yet
func (r *Registry) GetOrCreate(ctx context.Context, id string) *Session {
	if s, ok := r.Get(id); ok {
		return s
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = NewSession(id, r.deps)
		// held until the replay finishes so no turn can run on an empty window
		s.mu.Lock()
		r.sessions[id] = s
	}
	r.mu.Unlock()

	if !ok {
		err := s.restoreLocked(ctx)
		s.mu.Unlock()
		if err != nil {
			r.deps.Logger.Error("Failed to restore session",
				zap.Error(err),
				zap.String("session_id", id))
		}
	}
	return s
}

// Lookup returns a loaded session, or loads one whose history is archived.
// Ids that are neither loaded nor archived report false and create nothing.
func (r *Registry) Lookup(ctx context.Context, id string) (*Session, bool, error) {
	if s, ok := r.Get(id); ok {
		return s, true, nil
	}
	archived, err := r.archived(ctx, id)
	if err != nil || !archived {
		return nil, false, err
	}
	return r.GetOrCreate(ctx, id), true, nil
}

func (r *Registry) archived(ctx context.Context, id string) (bool, error) {
	if r.deps.Archive == nil {
		return false, nil
	}
	exchanges, err := r.deps.Archive.GetSessionExchanges(ctx, id, 1)
	if err != nil {
		return false, fmt.Errorf("lookup session %s: %w", id, err)
	}
	return len(exchanges) > 0, nil
}

// Delete resets and forgets a session. It reports whether the id was loaded
// or had archived history.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		archived, err := r.archived(ctx, id)
		if err != nil || !archived {
			return false, err
		}
		return true, r.deps.Archive.DeleteSession(ctx, id)
	}
	return true, s.Reset(ctx)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
