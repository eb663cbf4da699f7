package knowledge

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voicedesk/switchboard/internal/storage"
)

// matchThreshold is the similarity score a fuzzy candidate must strictly
// exceed to count as a match.
const matchThreshold = 0.7

// Store defines the storage operations the Service needs.
// Implemented by storage.Store.
type Store interface {
	InsertKnowledgeEntry(e storage.KnowledgeEntry) error
	FindKnowledgeEntryByKey(key string) (storage.KnowledgeEntry, error)
	AllKnowledgeEntries() ([]storage.KnowledgeEntry, error)
	DeleteKnowledgeEntry(id string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service maintains the question/answer knowledge base and answers lookups
// with exact-match-first, fuzzy-second semantics.
type Service struct {
	store Store
	clock Clock
}

// NewService creates a Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store, clock: realClock{}}
}

// NewServiceWithClock creates a Service with a custom clock (for testing).
func NewServiceWithClock(store Store, clock Clock) *Service {
	return &Service{store: store, clock: clock}
}

// NewEntry is the caller-supplied part of a knowledge entry; id, key, and
// creation time are assigned by AddEntry.
type NewEntry struct {
	QuestionText        string
	AnswerText          string
	SourceHelpRequestID string
	Confidence          float64
}

// AddEntry assigns an id, question key, and creation timestamp, persists the
// entry, and returns it in full.
func (s *Service) AddEntry(e NewEntry) (storage.KnowledgeEntry, error) {
	entry := storage.KnowledgeEntry{
		ID:                  uuid.New().String(),
		QuestionKey:         Normalize(e.QuestionText),
		QuestionText:        e.QuestionText,
		AnswerText:          e.AnswerText,
		CreatedAt:           s.clock.Now().UTC(),
		SourceHelpRequestID: e.SourceHelpRequestID,
		Confidence:          e.Confidence,
	}
	if err := s.store.InsertKnowledgeEntry(entry); err != nil {
		return storage.KnowledgeEntry{}, fmt.Errorf("inserting knowledge entry: %w", err)
	}
	return entry, nil
}

// FindMatch looks up a stored answer for a question. An exact question-key
// match always wins; otherwise every entry is scanned in listing order
// (newest first) and the first one scoring strictly above the threshold is
// returned, with no ranking by best score. The full scan is a known scaling
// limit, acceptable for small knowledge bases.
func (s *Service) FindMatch(question string) (storage.KnowledgeEntry, bool, error) {
	key := Normalize(question)

	entry, err := s.store.FindKnowledgeEntryByKey(key)
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.KnowledgeEntry{}, false, fmt.Errorf("exact lookup: %w", err)
	}

	entries, err := s.store.AllKnowledgeEntries()
	if err != nil {
		return storage.KnowledgeEntry{}, false, fmt.Errorf("scanning entries: %w", err)
	}
	for _, candidate := range entries {
		if Similarity(key, candidate.QuestionKey) > matchThreshold {
			return candidate, true, nil
		}
	}

	return storage.KnowledgeEntry{}, false, nil
}

// ListEntries returns every knowledge entry, newest first.
func (s *Service) ListEntries() ([]storage.KnowledgeEntry, error) {
	return s.store.AllKnowledgeEntries()
}

// DeleteEntry removes an entry by id. Unknown ids fail with
// storage.ErrNotFound.
func (s *Service) DeleteEntry(id string) error {
	return s.store.DeleteKnowledgeEntry(id)
}
