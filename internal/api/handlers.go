package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voicedesk/switchboard/internal/escalation"
	"github.com/voicedesk/switchboard/internal/knowledge"
	"github.com/voicedesk/switchboard/internal/request"
	"github.com/voicedesk/switchboard/internal/storage"
	"github.com/voicedesk/switchboard/internal/voice"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the services the HTTP layer dispatches into.
type Deps struct {
	Engine    *escalation.Engine
	Requests  *request.Manager
	Knowledge *knowledge.Service
	Voice     *voice.Client
	Hub       Hub
	Token     string // bearer token for management routes; empty disables auth
}

// Hub is the slice of the notification hub the API needs.
type Hub interface {
	Handler() http.Handler
	ActiveCount() int
}

// NewHandler builds the full HTTP surface: the agent intake and voice
// pass-throughs are open (they are called by the voice pipeline itself),
// management routes carry bearer auth when a token is configured, and /ws is
// the dashboard's event stream.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/agent/call-received", handleCallReceived(deps))
	r.Post("/voice/token", handleVoiceToken(deps))
	r.Get("/voice/room/{sessionId}", handleVoiceRoom(deps))
	r.Handle("/ws", deps.Hub.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/help-requests", handleListHelpRequests(deps))
		r.Get("/help-requests/{id}", handleGetHelpRequest(deps))
		r.Post("/help-requests/{id}/respond", handleRespond(deps))
		r.Get("/knowledge", handleListKnowledge(deps))
		r.Delete("/knowledge/{id}", handleDeleteKnowledge(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "healthy",
			"timestamp":        time.Now().UTC(),
			"connectedClients": deps.Hub.ActiveCount(),
		})
	}
}

// CallEvent is the intake payload from the voice agent.
type CallEvent struct {
	SessionID    string               `json:"sessionId"`
	CustomerInfo storage.CustomerInfo `json:"customerInfo"`
	Question     string               `json:"question"`
}

func handleCallReceived(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var event CallEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if event.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		result, err := deps.Engine.HandleIncomingCall(r.Context(), event.SessionID, event.CustomerInfo, event.Question)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process call: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func handleListHelpRequests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			requests []storage.HelpRequest
			err      error
		)
		if r.URL.Query().Get("status") == "pending" {
			requests, err = deps.Requests.ListPending()
		} else {
			requests, err = deps.Requests.ListAll()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list help requests: %v", err)
			return
		}

		if requests == nil {
			requests = []storage.HelpRequest{}
		}
		writeJSON(w, http.StatusOK, requests)
	}
}

func handleGetHelpRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		req, err := deps.Requests.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "help request not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get help request: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, req)
	}
}

// RespondRequest is the supervisor's answer payload.
type RespondRequest struct {
	SupervisorResponse string `json:"supervisorResponse"`
}

// RespondResult pairs the updated request with the knowledge entry derived
// from it.
type RespondResult struct {
	HelpRequest    storage.HelpRequest    `json:"helpRequest"`
	KnowledgeEntry storage.KnowledgeEntry `json:"knowledgeEntry"`
}

func handleRespond(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")

		var req RespondRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		updated, entry, err := deps.Engine.Resolve(r.Context(), id, req.SupervisorResponse)
		switch {
		case errors.Is(err, escalation.ErrEmptyResponse):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "supervisor response is required")
			return
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "help request not found")
			return
		case errors.Is(err, storage.ErrInvalidTransition):
			httpError(w, http.StatusConflict, "invalid_state_error", "help request is no longer pending")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve help request: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, RespondResult{HelpRequest: updated, KnowledgeEntry: entry})
	}
}

func handleListKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Knowledge.ListEntries()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list knowledge entries: %v", err)
			return
		}

		if entries == nil {
			entries = []storage.KnowledgeEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleDeleteKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Knowledge.DeleteEntry(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete knowledge entry: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// VoiceTokenRequest asks for a room access token.
type VoiceTokenRequest struct {
	RoomName            string `json:"roomName"`
	ParticipantName     string `json:"participantName"`
	ParticipantIdentity string `json:"participantIdentity"`
}

func handleVoiceToken(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req VoiceTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.RoomName == "" || req.ParticipantName == "" || req.ParticipantIdentity == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"missing required fields: roomName, participantName, participantIdentity")
			return
		}

		token, err := deps.Voice.AccessToken(req.RoomName, req.ParticipantName, req.ParticipantIdentity)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to generate access token: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"token":      token,
			"livekitUrl": deps.Voice.URL(),
			"roomName":   req.RoomName,
		})
	}
}

func handleVoiceRoom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		writeJSON(w, http.StatusOK, deps.Voice.RoomInfo(sessionID))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
