package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/laura-db/pkg/twophase"
)

// finishRequest is the body of POST /_prepared/{gid}/commit and
// POST /_prepared/{gid}/rollback.
type finishRequest struct {
	Identity  string `json:"identity"`
	Superuser bool   `json:"superuser"`
}

// ListPrepared returns every transaction currently prepared and awaiting a
// commit or rollback decision.
func (h *Handlers) ListPrepared(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.db.PreparedTransactions())
}

// CommitPrepared finishes a prepared transaction by committing it.
func (h *Handlers) CommitPrepared(w http.ResponseWriter, r *http.Request) {
	h.finishPrepared(w, r, true)
}

// RollbackPrepared finishes a prepared transaction by aborting it.
func (h *Handlers) RollbackPrepared(w http.ResponseWriter, r *http.Request) {
	h.finishPrepared(w, r, false)
}

func (h *Handlers) finishPrepared(w http.ResponseWriter, r *http.Request, commit bool) {
	gid := chi.URLParam(r, "gid")
	if gid == "" {
		writeError(w, &BadRequestError{Message: "global transaction id is required"})
		return
	}

	// A caller without a body is treated as an anonymous, non-superuser
	// caller, rather than forced to send an empty JSON object.
	var req finishRequest
	if r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	caller := twophase.Caller{Identity: req.Identity, Superuser: req.Superuser}

	var err error
	if commit {
		err = h.db.CommitPrepared(gid, caller)
	} else {
		err = h.db.RollbackPrepared(gid, caller)
	}
	if err != nil {
		writeTwoPhaseError(w, err)
		return
	}

	writeSuccess(w, map[string]interface{}{"gid": gid, "committed": commit})
}

// writeTwoPhaseError maps the sentinel errors pkg/twophase returns to HTTP
// status codes. It is kept separate from writeError's type switch since
// these are plain errors.New values, not the typed errors the rest of this
// package's handlers return.
func writeTwoPhaseError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorType := "InternalError"

	switch {
	case errors.Is(err, twophase.ErrGIDNotFound):
		statusCode, errorType = http.StatusNotFound, "PreparedTransactionNotFound"
	case errors.Is(err, twophase.ErrGIDBusy):
		statusCode, errorType = http.StatusConflict, "PreparedTransactionBusy"
	case errors.Is(err, twophase.ErrInsufficientPrivilege):
		statusCode, errorType = http.StatusForbidden, "InsufficientPrivilege"
	case errors.Is(err, twophase.ErrDuplicateGID):
		statusCode, errorType = http.StatusConflict, "DuplicateTransactionID"
	case errors.Is(err, twophase.ErrGIDTooLong):
		statusCode, errorType = http.StatusBadRequest, "TransactionIDTooLong"
	case errors.Is(err, twophase.ErrOutOfMemory):
		statusCode, errorType = http.StatusServiceUnavailable, "TooManyPreparedTransactions"
	case errors.Is(err, twophase.ErrStateFileCorrupted):
		statusCode, errorType = http.StatusInternalServerError, "PreparedTransactionCorrupted"
	}

	response := map[string]interface{}{
		"ok":      false,
		"error":   errorType,
		"message": err.Error(),
		"code":    statusCode,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
