package notify

import (
	"encoding/json"
	"time"

	"github.com/voicedesk/switchboard/internal/storage"
)

// EventType tags the wire frames sent to dashboard subscribers.
type EventType string

const (
	TypeHelpRequestCreated EventType = "help_request_created"
	TypeHelpRequestUpdated EventType = "help_request_updated"
	TypeKnowledgeUpdated   EventType = "knowledge_updated"
	TypeCustomerFollowup   EventType = "customer_followup"
	TypeSubscribed         EventType = "subscribed"
)

// Event is a closed union: every kind carries exactly one payload shape.
// The unexported method keeps implementations inside this package so a
// switch over the concrete types can be exhaustive.
type Event interface {
	Kind() EventType
	data() any
}

// HelpRequestCreated announces a freshly escalated question.
type HelpRequestCreated struct {
	Request storage.HelpRequest
}

func (e HelpRequestCreated) Kind() EventType { return TypeHelpRequestCreated }
func (e HelpRequestCreated) data() any       { return e.Request }

// HelpRequestUpdated announces a status change on an existing request.
type HelpRequestUpdated struct {
	Request storage.HelpRequest
}

func (e HelpRequestUpdated) Kind() EventType { return TypeHelpRequestUpdated }
func (e HelpRequestUpdated) data() any       { return e.Request }

// KnowledgeUpdated announces a new knowledge base entry.
type KnowledgeUpdated struct {
	Entry storage.KnowledgeEntry
}

func (e KnowledgeUpdated) Kind() EventType { return TypeKnowledgeUpdated }
func (e KnowledgeUpdated) data() any       { return e.Entry }

// CustomerFollowup carries a human-readable follow-up message for a call
// session, mirrored to the dashboard.
type CustomerFollowup struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (e CustomerFollowup) Kind() EventType { return TypeCustomerFollowup }
func (e CustomerFollowup) data() any       { return e }

// Subscribed acknowledges a subscribe handshake. Sent only to the
// subscribing connection, never broadcast.
type Subscribed struct {
	Message string `json:"message"`
}

func (e Subscribed) Kind() EventType { return TypeSubscribed }
func (e Subscribed) data() any       { return e }

// wireEvent is the frame format: {"type", "data", "timestamp"}.
type wireEvent struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeEvent(e Event, at time.Time) ([]byte, error) {
	return json.Marshal(wireEvent{Type: e.Kind(), Data: e.data(), Timestamp: at})
}
