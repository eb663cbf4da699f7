package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voicedesk/switchboard/internal/storage"
)

// DefaultTimeout is how long a help request may stay PENDING before the
// sweeper reclaims it.
const DefaultTimeout = 10 * time.Minute

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	InsertHelpRequest(r storage.HelpRequest) error
	GetHelpRequest(id string) (storage.HelpRequest, error)
	PendingHelpRequests() ([]storage.HelpRequest, error)
	AllHelpRequests() ([]storage.HelpRequest, error)
	ExpiredHelpRequests(now time.Time) ([]storage.HelpRequest, error)
	MarkHelpRequestResolved(id, supervisorResponse string, resolvedAt time.Time) error
	MarkHelpRequestUnresolved(id string, resolvedAt time.Time) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager drives help requests through their PENDING -> RESOLVED/UNRESOLVED
// lifecycle. Transition safety lives in the store's guarded updates; the
// Manager adds deadlines and id assignment.
type Manager struct {
	store   Store
	clock   Clock
	timeout time.Duration
}

// NewManager creates a Manager with the given request timeout. A timeout of
// zero or less falls back to DefaultTimeout.
func NewManager(store Store, timeout time.Duration) *Manager {
	return NewManagerWithClock(store, timeout, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, timeout time.Duration, clock Clock) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{store: store, clock: clock, timeout: timeout}
}

// Create opens a PENDING help request with its deadline set to exactly
// creation time plus the configured timeout, and returns the full record.
func (m *Manager) Create(question string, customer storage.CustomerInfo, agentSessionID string) (storage.HelpRequest, error) {
	now := m.clock.Now().UTC()
	r := storage.HelpRequest{
		ID:             uuid.New().String(),
		Question:       question,
		CustomerInfo:   customer,
		Status:         storage.StatusPending,
		CreatedAt:      now,
		TimeoutAt:      now.Add(m.timeout),
		AgentSessionID: agentSessionID,
	}
	if err := m.store.InsertHelpRequest(r); err != nil {
		return storage.HelpRequest{}, fmt.Errorf("inserting help request: %w", err)
	}
	return r, nil
}

// Get returns the request with the given id, or storage.ErrNotFound.
func (m *Manager) Get(id string) (storage.HelpRequest, error) {
	return m.store.GetHelpRequest(id)
}

// ListPending returns PENDING requests, oldest first.
func (m *Manager) ListPending() ([]storage.HelpRequest, error) {
	return m.store.PendingHelpRequests()
}

// ListAll returns every request, newest first.
func (m *Manager) ListAll() ([]storage.HelpRequest, error) {
	return m.store.AllHelpRequests()
}

// ListExpired returns PENDING requests whose deadline has passed.
func (m *Manager) ListExpired() ([]storage.HelpRequest, error) {
	return m.store.ExpiredHelpRequests(m.clock.Now().UTC())
}

// MarkResolved transitions a PENDING request to RESOLVED with the
// supervisor's answer. Requests already in a terminal state fail with
// storage.ErrInvalidTransition; unknown ids with storage.ErrNotFound.
func (m *Manager) MarkResolved(id, supervisorResponse string) error {
	return m.store.MarkHelpRequestResolved(id, supervisorResponse, m.clock.Now().UTC())
}

// MarkUnresolved transitions a PENDING request to UNRESOLVED. Same error
// contract as MarkResolved.
func (m *Manager) MarkUnresolved(id string) error {
	return m.store.MarkHelpRequestUnresolved(id, m.clock.Now().UTC())
}
