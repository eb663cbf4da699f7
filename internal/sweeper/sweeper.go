package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicedesk/switchboard/internal/notify"
	"github.com/voicedesk/switchboard/internal/storage"
)

// FallbackMessage is spoken to a customer whose question went unanswered
// before the deadline.
const FallbackMessage = "I apologize, but I wasn't able to get an answer for you right now. " +
	"Please try calling back later or visit our website for more information."

// DefaultInterval is how often the sweeper polls for expired requests.
const DefaultInterval = 30 * time.Second

// Requests is the slice of the lifecycle manager the sweeper needs.
type Requests interface {
	ListExpired() ([]storage.HelpRequest, error)
	MarkUnresolved(id string) error
	Get(id string) (storage.HelpRequest, error)
}

// VoiceAgent delivers spoken messages into a customer's call session.
type VoiceAgent interface {
	DeliverMessage(ctx context.Context, sessionID, text string) error
}

// Broadcaster fans events out to dashboard subscribers.
type Broadcaster interface {
	Broadcast(e notify.Event)
}

// Sweeper periodically reclaims help requests that outlived their deadline:
// each one is marked UNRESOLVED, the customer hears a fallback message, and
// the dashboard is told. Per-request failures are logged and isolated so a
// bad record can never stop future sweeps.
type Sweeper struct {
	requests Requests
	voice    VoiceAgent
	events   Broadcaster
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Sweeper. An interval of zero or less falls back to
// DefaultInterval.
func New(requests Requests, voice VoiceAgent, events Broadcaster, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		requests: requests,
		voice:    voice,
		events:   events,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run polls until ctx is cancelled. Errors never escape to the caller; a
// sweeper that stops running would silently strand every future timeout.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// RunOnce performs a single sweep over the currently expired requests.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	expired, err := s.requests.ListExpired()
	if err != nil {
		return fmt.Errorf("listing expired requests: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency; a big backlog should not stampede the store.

	for _, req := range expired {
		req := req
		g.Go(func() error {
			if err := s.reclaim(gCtx, req); err != nil {
				// Isolate: log and keep sweeping the rest of the batch.
				s.logger.Error("failed to reclaim expired request",
					"request_id", req.ID, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// reclaim transitions one expired request to UNRESOLVED and emits the
// customer fallback and dashboard update. If a supervisor resolved the
// request between the expiry query and the transition, the guarded update
// loses cleanly and nothing is emitted.
func (s *Sweeper) reclaim(ctx context.Context, req storage.HelpRequest) error {
	s.logger.Info("help request timed out", "request_id", req.ID, "question", req.Question)

	if err := s.requests.MarkUnresolved(req.ID); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			s.logger.Info("request resolved before sweep, skipping", "request_id", req.ID)
			return nil
		}
		return fmt.Errorf("marking unresolved: %w", err)
	}

	if req.AgentSessionID != "" {
		// Best effort, one attempt only.
		if err := s.voice.DeliverMessage(ctx, req.AgentSessionID, FallbackMessage); err != nil {
			s.logger.Error("fallback delivery failed",
				"request_id", req.ID, "session_id", req.AgentSessionID, "error", err)
		}
	}

	updated, err := s.requests.Get(req.ID)
	if err != nil {
		return fmt.Errorf("re-fetching request: %w", err)
	}
	s.events.Broadcast(notify.HelpRequestUpdated{Request: updated})

	return nil
}
