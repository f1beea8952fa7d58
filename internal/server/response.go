package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spinup/spinup/internal/orchestrator"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// abandoned before the server answered.
const StatusClientClosedRequest = 499

const kindBadRequest = "bad_request"
const kindNotFound = "not_found"

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the failure kind plus whatever the typed error knows.
type ErrorDetail struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Round    int      `json:"round,omitempty"`
	Action   string   `json:"action,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Missing  []string `json:"missing,omitempty"`
	Attempts int      `json:"attempts,omitempty"`

	LastDecision *orchestrator.Decision `json:"lastDecision,omitempty"`
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func sendError(w http.ResponseWriter, status int, kind, message string) {
	sendJSON(w, status, ErrorResponse{Error: ErrorDetail{Kind: kind, Message: message}})
}

// sendRunError maps a run failure to its status code and error body.
func sendRunError(w http.ResponseWriter, err error) {
	detail := errorDetail(err)
	sendJSON(w, statusFor(orchestrator.Kind(detail.Kind)), ErrorResponse{Error: detail})
}

func statusFor(kind orchestrator.Kind) int {
	switch kind {
	case orchestrator.KindDecision:
		return http.StatusBadGateway
	case orchestrator.KindDispatch:
		return http.StatusUnprocessableEntity
	case orchestrator.KindLoopExceeded:
		return http.StatusLoopDetected
	case orchestrator.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorDetail(err error) ErrorDetail {
	d := ErrorDetail{Kind: string(orchestrator.ErrorKind(err)), Message: err.Error()}

	var (
		decErr  *orchestrator.DecisionError
		dispErr *orchestrator.DispatchError
		actErr  *orchestrator.ActionError
		loopErr *orchestrator.LoopExceededError
		canErr  *orchestrator.CanceledError
	)
	switch {
	case errors.As(err, &dispErr):
		d.Round, d.Action, d.Reason, d.Missing = dispErr.Round, dispErr.ActionID, string(dispErr.Reason), dispErr.Missing
	case errors.As(err, &actErr):
		d.Round, d.Action, d.Attempts = actErr.Round, actErr.ActionID, actErr.Attempts
	case errors.As(err, &loopErr):
		d.Round, d.Reason, d.LastDecision = loopErr.Rounds, string(loopErr.Limit), loopErr.LastDecision
	case errors.As(err, &decErr):
		d.Round = decErr.Round
	case errors.As(err, &canErr):
		d.Round = canErr.Round
	}
	return d
}
