// Package session owns the durable user identity and the per-launch session id.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/krishivoice/krishivoice/internal/bus"
)

// persistedIdentity is the on-disk shape of the durable identity.
type persistedIdentity struct {
	UserID string `json:"userId"`
}

// Manager hands out the durable per-install user id and the per-launch
// session id. Construct one at process start and pass it by reference;
// there is no package-level singleton.
//
// Persistence failures are non-fatal: the manager degrades to ephemeral
// in-memory identifiers rather than blocking a turn.
type Manager struct {
	mu        sync.Mutex
	userID    string
	sessionID string
	storePath string
	eventBus  *bus.EventBus
	logger    zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithStorePath overrides the identity file location.
func WithStorePath(path string) Option {
	return func(m *Manager) { m.storePath = path }
}

// WithEventBus attaches an event bus for session lifecycle events.
func WithEventBus(b *bus.EventBus) Option {
	return func(m *Manager) { m.eventBus = b }
}

// NewManager creates a session identity manager. configDir is where the
// durable user id is persisted; it is created on first write.
func NewManager(configDir string, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		storePath: filepath.Join(configDir, "identity.json"),
		logger:    logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UserID returns the durable user id, creating and persisting it on first
// call. It never fails: if the store cannot be read or written, a fresh
// in-memory id is used for the rest of the run.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userIDLocked()
}

func (m *Manager) userIDLocked() string {
	if m.userID != "" {
		return m.userID
	}

	if id, ok := m.loadPersisted(); ok {
		m.userID = id
		return m.userID
	}

	m.userID = uuid.NewString()
	if err := m.persist(m.userID); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to persist user id, using in-memory identity")
	}
	return m.userID
}

// SessionID returns the id of the current conversation run, generating one
// on first call.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		m.sessionID = uuid.NewString()
		m.publish(bus.EventTypeSessionStarted, m.sessionID)
	}
	return m.sessionID
}

// StartNewSession replaces the session id only; the user id is untouched.
func (m *Manager) StartNewSession() {
	m.mu.Lock()
	m.sessionID = uuid.NewString()
	id := m.sessionID
	m.mu.Unlock()

	m.logger.Info().Str("sessionId", id).Msg("New session started")
	m.publish(bus.EventTypeSessionStarted, id)
}

// ClearSession wipes both ids from memory and the persisted store.
// Used on logout-equivalent flows.
func (m *Manager) ClearSession() {
	m.mu.Lock()
	m.userID = ""
	m.sessionID = ""
	m.mu.Unlock()

	if err := os.Remove(m.storePath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn().Err(err).Msg("Failed to remove persisted identity")
	}
	m.logger.Info().Msg("Session identity cleared")
	m.publish(bus.EventTypeSessionCleared, "")
}

func (m *Manager) loadPersisted() (string, bool) {
	data, err := os.ReadFile(m.storePath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn().Err(err).Msg("Failed to read persisted identity")
		}
		return "", false
	}

	var stored persistedIdentity
	if err := json.Unmarshal(data, &stored); err != nil || stored.UserID == "" {
		m.logger.Warn().Err(err).Msg("Persisted identity unreadable, regenerating")
		return "", false
	}
	return stored.UserID, true
}

func (m *Manager) persist(userID string) error {
	if err := os.MkdirAll(filepath.Dir(m.storePath), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(persistedIdentity{UserID: userID})
	if err != nil {
		return err
	}
	return os.WriteFile(m.storePath, data, 0600)
}

func (m *Manager) publish(eventType bus.EventType, sessionID string) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(bus.Event{
		Type: eventType,
		Data: map[string]any{"sessionId": sessionID},
	})
}
