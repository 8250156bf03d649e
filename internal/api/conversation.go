package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/caspar0/caspar/internal/agent"
	"github.com/caspar0/caspar/internal/conversation"
	"github.com/caspar0/caspar/internal/log"
)

const maxRequestBody = 64 * 1024

// conversationHandler serves the customer-facing conversation endpoints.
type conversationHandler struct {
	agent  *agent.Agent
	logger log.Logger
}

type createConversationRequest struct {
	CustomerRef string `json:"customer_ref"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// create starts a new conversation.
// POST /api/v1/conversations
func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerRef == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_ref is required")
		return
	}

	conv, err := h.agent.Start(r.Context(), req.CustomerRef)
	if err != nil {
		h.logger.Error("failed to start conversation", "error", err, "customer", req.CustomerRef)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// get returns a conversation with its full transcript.
// GET /api/v1/conversations/{id}
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.agent.Get(r.Context(), id)
	if err != nil {
		h.writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// sendMessage processes one customer message and returns the updated
// conversation, including the agent's response turns.
// POST /api/v1/conversations/{id}/messages
func (h *conversationHandler) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	conv, err := h.agent.Process(r.Context(), id, req.Message)
	if err != nil {
		h.writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// end closes a conversation. Closing is terminal and idempotent from the
// client's perspective: ending a closed conversation reports the conflict.
// DELETE /api/v1/conversations/{id}
func (h *conversationHandler) end(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.agent.End(r.Context(), id); err != nil {
		h.writeConversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeConversationError maps domain errors to HTTP status codes.
func (h *conversationHandler) writeConversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
	case errors.Is(err, conversation.ErrClosed):
		writeError(w, http.StatusConflict, "conversation_closed", "conversation is closed")
	default:
		h.logger.Error("conversation request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// conversationID parses the {id} path value as a UUID, writing a 400 on
// failure.
func conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid conversation ID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a JSON request body with a size cap, rejecting unknown
// fields. Writes a 400 and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
