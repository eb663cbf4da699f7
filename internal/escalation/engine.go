package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voicedesk/switchboard/internal/knowledge"
	"github.com/voicedesk/switchboard/internal/notify"
	"github.com/voicedesk/switchboard/internal/storage"
)

// EscalationAck is spoken to the customer when their question has no cached
// answer and a supervisor is being pulled in.
const EscalationAck = "Let me check with my supervisor and get back to you."

// followupPrefix wraps the supervisor's answer when it is relayed back to a
// waiting customer.
const followupPrefix = "Thank you for your patience. "

// ErrEmptyResponse rejects a resolution with no supervisor answer.
var ErrEmptyResponse = errors.New("supervisor response is required")

// Answer sources for a handled call.
const (
	SourceKnowledgeBase = "knowledge_base"
	SourceEscalated     = "escalated"
)

// CallResult is what the voice agent gets back for an incoming question.
type CallResult struct {
	AnswerText    string `json:"answerText"`
	Source        string `json:"source"`
	HelpRequestID string `json:"helpRequestId,omitempty"`
}

// Knowledge is the slice of the knowledge service the engine needs.
type Knowledge interface {
	FindMatch(question string) (storage.KnowledgeEntry, bool, error)
	AddEntry(e knowledge.NewEntry) (storage.KnowledgeEntry, error)
}

// Requests is the slice of the lifecycle manager the engine needs.
type Requests interface {
	Create(question string, customer storage.CustomerInfo, agentSessionID string) (storage.HelpRequest, error)
	Get(id string) (storage.HelpRequest, error)
	MarkResolved(id, supervisorResponse string) error
}

// VoiceAgent delivers spoken messages into a customer's call session.
type VoiceAgent interface {
	DeliverMessage(ctx context.Context, sessionID, text string) error
}

// Broadcaster fans events out to dashboard subscribers. Fire-and-forget;
// the authoritative state is always the store, reachable by polling.
type Broadcaster interface {
	Broadcast(e notify.Event)
}

// Engine is the call-handling decision point: answer from the knowledge base
// when possible, otherwise escalate to a supervisor; and fold supervisor
// answers back into the knowledge base.
type Engine struct {
	knowledge Knowledge
	requests  Requests
	voice     VoiceAgent
	events    Broadcaster
	logger    *slog.Logger
}

// NewEngine wires the engine's collaborators together.
func NewEngine(kn Knowledge, req Requests, voice VoiceAgent, events Broadcaster) *Engine {
	return &Engine{
		knowledge: kn,
		requests:  req,
		voice:     voice,
		events:    events,
		logger:    slog.Default(),
	}
}

// HandleIncomingCall routes one customer question. A knowledge hit is spoken
// straight back; a miss speaks the escalation ack, opens a PENDING help
// request, and announces it to the dashboard. The broadcast is best-effort:
// the request exists either way and is visible via polling.
func (e *Engine) HandleIncomingCall(ctx context.Context, sessionID string, customer storage.CustomerInfo, question string) (CallResult, error) {
	match, ok, err := e.knowledge.FindMatch(question)
	if err != nil {
		return CallResult{}, fmt.Errorf("matching question: %w", err)
	}

	if ok {
		if sessionID != "" {
			if err := e.voice.DeliverMessage(ctx, sessionID, match.AnswerText); err != nil {
				return CallResult{}, fmt.Errorf("delivering answer: %w", err)
			}
		}
		e.logger.Info("answered from knowledge base",
			"session_id", sessionID, "entry_id", match.ID)
		return CallResult{AnswerText: match.AnswerText, Source: SourceKnowledgeBase}, nil
	}

	if sessionID != "" {
		if err := e.voice.DeliverMessage(ctx, sessionID, EscalationAck); err != nil {
			return CallResult{}, fmt.Errorf("delivering escalation ack: %w", err)
		}
	}

	req, err := e.requests.Create(question, customer, sessionID)
	if err != nil {
		return CallResult{}, fmt.Errorf("creating help request: %w", err)
	}

	e.events.Broadcast(notify.HelpRequestCreated{Request: req})
	e.logger.Info("question escalated",
		"session_id", sessionID, "request_id", req.ID, "question", question)

	return CallResult{
		AnswerText:    EscalationAck,
		Source:        SourceEscalated,
		HelpRequestID: req.ID,
	}, nil
}

// Resolve applies a supervisor's answer to a pending help request: marks it
// RESOLVED, derives a knowledge entry, relays the answer to the customer,
// and notifies the dashboard. The steps run in order but are not one
// transaction; a failure after the status flip leaves a resolved request
// with no knowledge entry, which is logged rather than silently retried.
func (e *Engine) Resolve(ctx context.Context, id, supervisorResponse string) (storage.HelpRequest, storage.KnowledgeEntry, error) {
	if strings.TrimSpace(supervisorResponse) == "" {
		return storage.HelpRequest{}, storage.KnowledgeEntry{}, ErrEmptyResponse
	}

	req, err := e.requests.Get(id)
	if err != nil {
		return storage.HelpRequest{}, storage.KnowledgeEntry{}, err
	}

	if err := e.requests.MarkResolved(id, supervisorResponse); err != nil {
		return storage.HelpRequest{}, storage.KnowledgeEntry{}, err
	}

	entry, err := e.knowledge.AddEntry(knowledge.NewEntry{
		QuestionText:        req.Question,
		AnswerText:          supervisorResponse,
		SourceHelpRequestID: id,
		Confidence:          1.0,
	})
	if err != nil {
		// Known partial-failure window: the request is resolved but the
		// knowledge base was not updated.
		e.logger.Error("request resolved but knowledge entry not written",
			"request_id", id, "error", err)
		return storage.HelpRequest{}, storage.KnowledgeEntry{}, fmt.Errorf("adding knowledge entry: %w", err)
	}

	if req.AgentSessionID != "" {
		followup := followupPrefix + supervisorResponse
		if err := e.voice.DeliverMessage(ctx, req.AgentSessionID, followup); err != nil {
			// One attempt only; the dashboard and store already have the answer.
			e.logger.Error("follow-up delivery failed",
				"request_id", id, "session_id", req.AgentSessionID, "error", err)
		}
		e.events.Broadcast(notify.CustomerFollowup{
			SessionID: req.AgentSessionID,
			Message:   followup,
		})
	}

	updated, err := e.requests.Get(id)
	if err != nil {
		return storage.HelpRequest{}, storage.KnowledgeEntry{}, fmt.Errorf("re-fetching resolved request: %w", err)
	}

	e.events.Broadcast(notify.HelpRequestUpdated{Request: updated})
	e.events.Broadcast(notify.KnowledgeUpdated{Entry: entry})

	e.logger.Info("help request resolved",
		"request_id", id, "entry_id", entry.ID)

	return updated, entry, nil
}
