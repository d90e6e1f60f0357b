package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// sessionOpRequest is the body of an operation performed against an open
// session: whichever of Doc/Filter/Update the operation needs.
type sessionOpRequest struct {
	Collection string                 `json:"collection"`
	Doc        map[string]interface{} `json:"doc,omitempty"`
	Filter     map[string]interface{} `json:"filter,omitempty"`
	Update     map[string]interface{} `json:"update,omitempty"`
}

// BeginSession starts a multi-operation transaction and returns a session
// ID that later requests use to add operations, commit or abort it
// outright, or hand it off to pkg/twophase by preparing it under a global
// transaction identifier.
func (h *Handlers) BeginSession(w http.ResponseWriter, r *http.Request) {
	id, _, err := h.db.SessionManager().Start(h.db)
	if err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}
	writeSuccess(w, map[string]interface{}{"sessionId": id})
}

// SessionInsert inserts a document within an open session's transaction.
func (h *Handlers) SessionInsert(w http.ResponseWriter, r *http.Request) {
	session, err := h.db.SessionManager().Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}

	var req sessionOpRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := session.InsertOne(req.Collection, req.Doc)
	if err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}

	writeSuccess(w, map[string]interface{}{"id": id})
}

// SessionUpdate updates a document within an open session's transaction.
func (h *Handlers) SessionUpdate(w http.ResponseWriter, r *http.Request) {
	session, err := h.db.SessionManager().Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}

	var req sessionOpRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := session.UpdateOne(req.Collection, req.Filter, req.Update); err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}

	writeSuccess(w, map[string]interface{}{"updated": true})
}

// SessionDelete deletes a document within an open session's transaction.
func (h *Handlers) SessionDelete(w http.ResponseWriter, r *http.Request) {
	session, err := h.db.SessionManager().Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}

	var req sessionOpRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := session.DeleteOne(req.Collection, req.Filter); err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}

	writeSuccess(w, map[string]interface{}{"deleted": true})
}

// CommitSession commits and releases an open session.
func (h *Handlers) CommitSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.db.SessionManager().Get(id)
	if err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}

	err = session.CommitTransaction()
	h.db.SessionManager().Release(id)
	if err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}

	writeSuccess(w, map[string]interface{}{"committed": true})
}

// AbortSession aborts and releases an open session.
func (h *Handlers) AbortSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.db.SessionManager().Get(id)
	if err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}

	err = session.AbortTransaction()
	h.db.SessionManager().Release(id)
	if err != nil {
		writeError(w, &InternalError{Message: err.Error()})
		return
	}

	writeSuccess(w, map[string]interface{}{"aborted": true})
}

// prepareSessionRequest is the body of POST /_sessions/{id}/prepare.
type prepareSessionRequest struct {
	GID string `json:"gid"`
}

// PrepareSession durably prepares an open session's transaction under a
// global transaction identifier and releases it from session tracking: the
// only way to finish it from here on is through CommitPrepared or
// RollbackPrepared, potentially from an entirely different caller.
func (h *Handlers) PrepareSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.db.SessionManager().Get(id)
	if err != nil {
		writeError(w, &BadRequestError{Message: err.Error()})
		return
	}

	var req prepareSessionRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.GID == "" {
		writeError(w, &BadRequestError{Message: "gid is required"})
		return
	}

	err = session.PrepareTransaction(req.GID)
	h.db.SessionManager().Release(id)
	if err != nil {
		writeTwoPhaseError(w, err)
		return
	}

	writeSuccess(w, map[string]interface{}{"gid": req.GID, "prepared": true})
}
