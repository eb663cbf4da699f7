package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a help request is asked to leave a
// terminal state. Whichever transition lands first wins; the loser gets this
// error instead of a silent overwrite.
var ErrInvalidTransition = errors.New("invalid state transition")

// Help request statuses. PENDING is the only non-terminal state.
const (
	StatusPending    = "PENDING"
	StatusResolved   = "RESOLVED"
	StatusUnresolved = "UNRESOLVED"
)

// CustomerInfo is the optional contact detail attached to a help request.
type CustomerInfo struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// HelpRequest is a customer question escalated to a human supervisor.
// CreatedAt and TimeoutAt are fixed at creation; ResolvedAt and
// SupervisorResponse are written exactly once, on the transition out of
// PENDING.
type HelpRequest struct {
	ID                 string       `json:"id"`
	Question           string       `json:"question"`
	CustomerInfo       CustomerInfo `json:"customerInfo"`
	Status             string       `json:"status"`
	CreatedAt          time.Time    `json:"createdAt"`
	TimeoutAt          time.Time    `json:"timeoutAt"`
	ResolvedAt         *time.Time   `json:"resolvedAt,omitempty"`
	SupervisorResponse string       `json:"supervisorResponse,omitempty"`
	AgentSessionID     string       `json:"agentSessionId,omitempty"`
}

// Pending reports whether the request is still awaiting a supervisor.
func (r HelpRequest) Pending() bool { return r.Status == StatusPending }

// KnowledgeEntry is a stored question/answer pair usable to auto-answer
// future matching questions. Entries are append-and-delete: never mutated
// after creation.
type KnowledgeEntry struct {
	ID                  string    `json:"id"`
	QuestionKey         string    `json:"questionKey"`
	QuestionText        string    `json:"questionText"`
	AnswerText          string    `json:"answerText"`
	CreatedAt           time.Time `json:"createdAt"`
	SourceHelpRequestID string    `json:"sourceHelpRequestId,omitempty"`
	Confidence          float64   `json:"confidence"`
}
