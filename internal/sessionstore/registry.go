package sessionstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

const registryFileName = "sessions.json"

// registryDoc is the on-disk shape: {active_session, sessions}. Field
// additions must stay forward-compatible — unknown fields are ignored by
// json5's decoder and missing ones keep their Go zero value; Load then
// applies newSession's defaults to PermissionMode, ThinkingMode and Dirs.
type registryDoc struct {
	ActiveSession *string            `json:"active_session"`
	Sessions      map[string]Session `json:"sessions"`
}

// Registry is the in-memory map of named sessions plus their active
// pointer, flushed atomically to disk on every mutation.
type Registry struct {
	mu         sync.RWMutex
	dir        string
	sessions   map[string]*Session
	activeName string
	log        zerolog.Logger
}

// New constructs a Registry rooted at dir (typically config.SessionsDir()).
// It does not load from disk; call Load for that.
func New(dir string, log zerolog.Logger) *Registry {
	return &Registry{
		dir:      dir,
		sessions: make(map[string]*Session),
		log:      log.With().Str("component", "sessionstore").Logger(),
	}
}

// Load reads the registry file, tolerating a missing file (empty registry)
// and rejecting a corrupt file with a logged error (registry stays empty).
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dir, registryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Info().Msg("no sessions file found, starting fresh")
			return nil
		}
		return fmt.Errorf("read sessions file: %w", err)
	}

	var doc registryDoc
	if err := json5.Unmarshal(data, &doc); err != nil {
		r.log.Error().Err(err).Msg("failed to load sessions, registry stays empty")
		return nil
	}

	sessions := make(map[string]*Session, len(doc.Sessions))
	for name, s := range doc.Sessions {
		sCopy := s
		sCopy.Name = name
		if sCopy.PermissionMode == "" {
			sCopy.PermissionMode = PermissionDefault
		}
		if sCopy.ThinkingMode == "" {
			sCopy.ThinkingMode = ThinkingAdaptive
		}
		if sCopy.Dirs == nil {
			sCopy.Dirs = []string{}
		}
		sessions[name] = &sCopy
	}
	r.sessions = sessions
	if doc.ActiveSession != nil {
		r.activeName = *doc.ActiveSession
	}
	r.log.Info().Int("count", len(sessions)).Str("active", r.activeName).Msg("loaded sessions")
	return nil
}

// Create adds a brand new session and makes it active. Returns
// (nil, false) if a session with that name already exists.
func (r *Registry) Create(name, cwd string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; ok {
		return nil, false
	}
	s := newSession(name, cwd)
	r.sessions[name] = s
	r.activeName = name
	r.saveLocked()
	return s, true
}

// Get returns the named session, or nil if it doesn't exist.
func (r *Registry) Get(name string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[name]
}

// Delete removes a session. If it was active, the first remaining session
// (in map iteration order, which Go does not guarantee — callers that need
// determinism should prefer Switch) becomes active; otherwise active
// becomes none.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; !ok {
		return false
	}
	delete(r.sessions, name)
	if r.activeName == name {
		r.activeName = ""
		for n := range r.sessions {
			r.activeName = n
			break
		}
	}
	r.saveLocked()
	return true
}

// ListAll returns every session, in no particular order.
func (r *Registry) ListAll() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Switch makes name the active session, returning it (or nil if unknown).
func (r *Registry) Switch(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	if !ok {
		return nil
	}
	r.activeName = name
	r.saveLocked()
	return s
}

// Rename moves a session to a new name. Returns an error message (matching
// the original's "return error string or nil" shape) or "" on success.
func (r *Registry) Rename(oldName, newName string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[oldName]
	if !ok {
		return fmt.Sprintf("Session %q not found.", oldName)
	}
	if _, exists := r.sessions[newName]; exists {
		return fmt.Sprintf("Session %q already exists.", newName)
	}
	delete(r.sessions, oldName)
	s.Name = newName
	r.sessions[newName] = s
	if r.activeName == oldName {
		r.activeName = newName
	}
	r.saveLocked()
	return ""
}

// SetAgentThread updates a session's resumption token.
func (r *Registry) SetAgentThread(name, threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	if !ok {
		return
	}
	s.AgentThreadID = threadID
	s.Touch()
	r.saveLocked()
}

// Current returns the active session, or nil if none is active.
func (r *Registry) Current() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeName == "" {
		return nil
	}
	return r.sessions[r.activeName]
}

// ActiveName returns the active session's name, or "" if none.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeName
}

// Save persists the registry, e.g. after a caller mutates a *Session field
// in place (the mutex only guards the map/active-name, not Session bodies;
// callers that mutate a returned *Session must call Save afterwards).
func (r *Registry) Save() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveLocked()
}

func (r *Registry) saveLocked() {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Error().Err(err).Msg("failed to create sessions directory")
		return
	}
	sessions := make(map[string]Session, len(r.sessions))
	for name, s := range r.sessions {
		sessions[name] = *s
	}
	var active *string
	if r.activeName != "" {
		active = &r.activeName
	}
	doc := registryDoc{ActiveSession: active, Sessions: sessions}
	data, err := json5.MarshalIndent(doc, "", "  ")
	if err != nil {
		r.log.Error().Err(err).Msg("failed to marshal sessions")
		return
	}
	path := filepath.Join(r.dir, registryFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		r.log.Error().Err(err).Msg("failed to write sessions file")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		r.log.Error().Err(err).Msg("failed to replace sessions file")
	}
}
