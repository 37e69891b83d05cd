package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/malbeclabs/bounty/api/handlers/dberror"
	"github.com/malbeclabs/bounty/api/metrics"
	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeEngineError maps an engine failure to 422 with its kind as the error code.
func (a *API) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, liquidity.ErrInvalidAmount) {
		metrics.RecordEngineRejection("invalid_amount")
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", err.Error())
		return
	}
	if kind := calcerror.KindOf(err); kind != 0 {
		metrics.RecordEngineRejection(kind.String())
		writeError(w, http.StatusUnprocessableEntity, kind.String(), err.Error())
		return
	}
	a.log.Error("api: unexpected engine error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeStoreError answers 503 when the backing store is unreachable and 500 otherwise.
func (a *API) writeStoreError(w http.ResponseWriter, msg string, err error, args ...any) {
	a.log.Error("api: "+msg, append(args, "error", err)...)
	if dberror.IsUnavailable(err) {
		writeError(w, http.StatusServiceUnavailable, "unavailable", dberror.UserMessage(err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", dberror.UserMessage(err))
}
