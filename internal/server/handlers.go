package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/spinup/spinup/internal/orchestrator"
	"github.com/spinup/spinup/internal/runstore"
)

const maxRequestBytes = 1 << 20

// RunRequest is the body of POST /api/run. Data is passed to actions as
// their structured input alongside the query.
type RunRequest struct {
	Input string         `json:"input"`
	Data  map[string]any `json:"data,omitempty"`
}

func (req RunRequest) validate() error {
	if strings.TrimSpace(req.Input) == "" {
		return errors.New(`"input" is required`)
	}
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, kindBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		sendError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	res, err := s.engine.Run(r.Context(), orchestrator.Request{Query: req.Input, Input: req.Data})
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(orchestrator.ErrorKind(err))).Msg("run failed")
		sendRunError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleActions(w http.ResponseWriter, _ *http.Request) {
	reg := s.engine.Registry()
	type actionInfo struct {
		orchestrator.ActionDescriptor
		Retries   int      `json:"retries"`
		DependsOn []string `json:"dependsOn,omitempty"`
	}
	out := make([]actionInfo, 0, reg.Len())
	for _, d := range reg.Describe() {
		a, _ := reg.Lookup(d.ID)
		out = append(out, actionInfo{ActionDescriptor: d, Retries: a.Config.Retries, DependsOn: a.Config.DependsOn})
	}
	sendJSON(w, http.StatusOK, map[string]any{"actions": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		sendError(w, http.StatusNotFound, kindNotFound, "run history is disabled")
		return
	}
	id := mux.Vars(r)["id"]
	run, err := s.store.Get(r.Context(), id)
	if errors.Is(err, runstore.ErrNotFound) {
		sendError(w, http.StatusNotFound, kindNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("get run")
		sendError(w, http.StatusInternalServerError, string(orchestrator.KindUnknown), err.Error())
		return
	}
	sendJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		sendJSON(w, http.StatusOK, map[string]any{"runs": []any{}})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, kindBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list runs")
		sendError(w, http.StatusInternalServerError, string(orchestrator.KindUnknown), err.Error())
		return
	}
	if runs == nil {
		runs = []*runstore.Run{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
