package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/spinup/spinup/internal/orchestrator"
	"github.com/spinup/spinup/internal/scheduler"
)

// Jobs is the part of *scheduler.Scheduler the job routes need.
type Jobs interface {
	ListJobs() []scheduler.Job
	GetJob(name string) (scheduler.Job, bool)
	AddJob(job scheduler.Job) error
	RemoveJob(name string) error
	PauseJob(name string) error
	ResumeJob(name string) error
	Trigger(name string) (*orchestrator.Result, error)
}

const (
	kindConflict  = "conflict"
	kindForbidden = "forbidden"
)

func (s *Server) registerJobRoutes(api *mux.Router) {
	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleCreateJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{name}", s.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{name}", s.jobOp(func(name string) error { return s.jobs.RemoveJob(name) })).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{name}/pause", s.jobOp(func(name string) error { return s.jobs.PauseJob(name) })).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{name}/resume", s.jobOp(func(name string) error { return s.jobs.ResumeJob(name) })).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{name}/run", s.handleTriggerJob).Methods(http.MethodPost)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.jobs.ListJobs()
	if jobs == nil {
		jobs = []scheduler.Job{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	job, ok := s.jobs.GetJob(name)
	if !ok {
		sendError(w, http.StatusNotFound, kindNotFound, "job "+name+" not found")
		return
	}
	sendJSON(w, http.StatusOK, job)
}

// JobRequest is the body of POST /api/jobs.
type JobRequest struct {
	Name   string         `json:"name"`
	Cron   string         `json:"cron"`
	Query  string         `json:"query"`
	Input  map[string]any `json:"input,omitempty"`
	Paused bool           `json:"paused,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, kindBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	err := s.jobs.AddJob(scheduler.Job{Name: req.Name, Cron: req.Cron, Query: req.Query, Input: req.Input, Paused: req.Paused})
	if err != nil {
		s.sendJobError(w, req.Name, err)
		return
	}
	job, _ := s.jobs.GetJob(req.Name)
	s.log.Info().Str("job", job.Name).Str("cron", job.Cron).Msg("job created")
	sendJSON(w, http.StatusCreated, job)
}

// jobOp wraps a name-only scheduler operation and answers with the job's
// state afterwards, or 204 when the job is gone.
func (s *Server) jobOp(op func(name string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if err := op(name); err != nil {
			s.sendJobError(w, name, err)
			return
		}
		job, ok := s.jobs.GetJob(name)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		sendJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	res, err := s.jobs.Trigger(name)
	if errors.Is(err, scheduler.ErrJobNotFound) {
		sendError(w, http.StatusNotFound, kindNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("job", name).Msg("triggered job failed")
		sendRunError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) sendJobError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		sendError(w, http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, scheduler.ErrConfigProtected):
		sendError(w, http.StatusForbidden, kindForbidden, err.Error())
	case errors.Is(err, scheduler.ErrJobExists):
		sendError(w, http.StatusConflict, kindConflict, err.Error())
	default:
		s.log.Debug().Err(err).Str("job", name).Msg("job request rejected")
		sendError(w, http.StatusBadRequest, kindBadRequest, err.Error())
	}
}
