package api

import (
	"errors"
	"net/http"

	"github.com/caspar0/caspar/internal/agent"
	"github.com/caspar0/caspar/internal/handoff"
	"github.com/caspar0/caspar/internal/log"
)

// handoffHandler serves the human-agent endpoints for working the escalation
// queue.
type handoffHandler struct {
	agent  *agent.Agent
	queue  *handoff.Queue
	logger log.Logger
}

type claimCaseRequest struct {
	AgentID string `json:"agent_id"`
}

type resolveCaseRequest struct {
	AgentID string `json:"agent_id"`
	Outcome string `json:"outcome"`
	Note    string `json:"note,omitempty"`
}

// queueEntry is one case in the queue listing, annotated with its serving
// position and estimated wait.
type queueEntry struct {
	*handoff.Case
	Position        int `json:"position"`
	EstimatedWaitMS int `json:"estimated_wait_ms"`
}

// listQueue returns open cases in serving order.
// GET /api/v1/handoff/queue
func (h *handoffHandler) listQueue(w http.ResponseWriter, _ *http.Request) {
	cases := h.queue.List()
	entries := make([]queueEntry, 0, len(cases))
	for _, c := range cases {
		pos, err := h.queue.Position(c.ID)
		if err != nil {
			// Case resolved between List and Position.
			continue
		}
		wait, _ := h.queue.EstimatedWait(c.ID)
		entries = append(entries, queueEntry{
			Case:            c,
			Position:        pos,
			EstimatedWaitMS: int(wait.Milliseconds()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": entries})
}

// getCase returns a single case with its context package.
// GET /api/v1/handoff/cases/{id}
func (h *handoffHandler) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.queue.Get(r.PathValue("id"))
	if err != nil {
		h.writeHandoffError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// claimCase assigns a queued case to the requesting human agent.
// POST /api/v1/handoff/cases/{id}/claim
func (h *handoffHandler) claimCase(w http.ResponseWriter, r *http.Request) {
	var req claimCaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return
	}

	c, err := h.queue.Claim(r.Context(), r.PathValue("id"), req.AgentID)
	if err != nil {
		h.writeHandoffError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// resolveCase records the human agent's resolution and routes the
// conversation back to the automated agent or closes it.
// POST /api/v1/handoff/cases/{id}/resolve
func (h *handoffHandler) resolveCase(w http.ResponseWriter, r *http.Request) {
	var req resolveCaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return
	}
	outcome := handoff.Outcome(req.Outcome)
	if !outcome.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"outcome must be \"resumed\" or \"closed\"")
		return
	}

	c, err := h.agent.ResolveCase(r.Context(), r.PathValue("id"), req.AgentID, outcome, req.Note)
	if err != nil {
		h.writeHandoffError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type submitDraftRequest struct {
	Draft       string `json:"draft"`
	SubmittedBy string `json:"submitted_by,omitempty"`
}

type approveDraftRequest struct {
	AgentID    string `json:"agent_id"`
	EditedText string `json:"edited_text,omitempty"`
}

type rejectDraftRequest struct {
	AgentID string `json:"agent_id"`
}

// submitDraft holds a drafted response for review by the claiming agent.
// POST /api/v1/handoff/cases/{id}/drafts
func (h *handoffHandler) submitDraft(w http.ResponseWriter, r *http.Request) {
	var req submitDraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Draft == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "draft is required")
		return
	}

	a, err := h.agent.SubmitDraft(r.Context(), r.PathValue("id"), req.SubmittedBy, req.Draft)
	if err != nil {
		h.writeHandoffError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// approveDraft releases a draft to the customer, optionally edited.
// POST /api/v1/handoff/approvals/{id}/approve
func (h *handoffHandler) approveDraft(w http.ResponseWriter, r *http.Request) {
	var req approveDraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return
	}

	a, err := h.agent.ApproveDraft(r.Context(), r.PathValue("id"), req.AgentID, req.EditedText)
	if err != nil {
		h.writeHandoffError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// rejectDraft discards a draft without sending it.
// POST /api/v1/handoff/approvals/{id}/reject
func (h *handoffHandler) rejectDraft(w http.ResponseWriter, r *http.Request) {
	var req rejectDraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "agent_id is required")
		return
	}

	a, err := h.agent.RejectDraft(r.Context(), r.PathValue("id"), req.AgentID)
	if err != nil {
		h.writeHandoffError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// writeHandoffError maps handoff queue errors to HTTP status codes.
func (h *handoffHandler) writeHandoffError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, handoff.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, "not_found", "handoff case not found")
	case errors.Is(err, handoff.ErrApprovalNotFound):
		writeError(w, http.StatusNotFound, "not_found", "approval not found")
	case errors.Is(err, handoff.ErrApprovalDecided):
		writeError(w, http.StatusConflict, "already_decided", "approval is already decided")
	case errors.Is(err, handoff.ErrApprovalPending):
		writeError(w, http.StatusConflict, "approval_pending", "case already has a pending draft")
	case errors.Is(err, handoff.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "already_claimed", "case is claimed by another agent")
	case errors.Is(err, handoff.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", "case is already resolved")
	case errors.Is(err, handoff.ErrNotClaimed):
		writeError(w, http.StatusConflict, "not_claimed", "case must be claimed before resolving")
	case errors.Is(err, handoff.ErrWrongAgent):
		writeError(w, http.StatusForbidden, "wrong_agent", "case is held by another agent")
	default:
		h.logger.Error("handoff request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
