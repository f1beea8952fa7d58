// Package scheduler runs configured queries through the engine on cron
// schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/spinup/spinup/internal/orchestrator"
)

// Runner executes one request. *orchestrator.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request, observers ...orchestrator.Observer) (*orchestrator.Result, error)
}

const (
	SourceConfig  = "config"
	SourceDynamic = "dynamic"
)

// Job is a scheduled query at runtime.
type Job struct {
	Name   string         `yaml:"name" json:"name"`
	Cron   string         `yaml:"cron" json:"cron"`
	Query  string         `yaml:"query" json:"query"`
	Input  map[string]any `yaml:"input,omitempty" json:"input,omitempty"`
	Paused bool           `yaml:"paused,omitempty" json:"paused,omitempty"`
	Source string         `yaml:"source,omitempty" json:"source,omitempty"`

	LastRunID  string    `yaml:"-" json:"lastRunId,omitempty"`
	LastRunAt  time.Time `yaml:"-" json:"lastRunAt,omitempty"`
	LastStatus string    `yaml:"-" json:"lastStatus,omitempty"`
	LastError  string    `yaml:"-" json:"lastError,omitempty"`
	NextRunAt  time.Time `yaml:"-" json:"nextRunAt,omitempty"`
}

var ErrConfigProtected = errors.New("config-defined jobs cannot be modified or removed")

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type entry struct {
	job Job
	id  cron.EntryID
}

// Scheduler owns a cron instance whose entries each run one Job.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*entry
	cron    *cron.Cron
	runner  Runner
	dataDir string
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped scheduler. Dynamic jobs persist under dataDir when it
// is non-empty.
func New(dataDir string, log *zerolog.Logger) *Scheduler {
	l := zerolog.Nop()
	if log != nil {
		l = log.With().Str("component", "scheduler").Logger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:    make(map[string]*entry),
		dataDir: dataDir,
		log:     l,
		ctx:     ctx,
		cancel:  cancel,
	}
	cl := cronLogger{l}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Start registers static jobs and persisted dynamic jobs, then starts the
// cron loop. Jobs that fail validation are logged and skipped.
func (s *Scheduler) Start(runner Runner, staticJobs []Job) error {
	if runner == nil {
		return errors.New("scheduler: runner is required")
	}
	s.mu.Lock()
	s.runner = runner
	s.mu.Unlock()

	for _, j := range staticJobs {
		j.Source = SourceConfig
		if err := s.add(j); err != nil {
			s.log.Warn().Err(err).Str("job", j.Name).Msg("skipping static job")
		}
	}

	dynamic, err := s.loadDynamic()
	if err != nil {
		s.log.Warn().Err(err).Msg("loading dynamic jobs")
	}
	for _, j := range dynamic {
		j.Source = SourceDynamic
		if err := s.add(j); err != nil {
			s.log.Warn().Err(err).Str("job", j.Name).Msg("skipping dynamic job")
		}
	}

	s.cron.Start()
	s.log.Info().Int("jobs", len(s.ListJobs())).Msg("scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// AddJob registers a dynamic job and persists it.
func (s *Scheduler) AddJob(job Job) error {
	job.Source = SourceDynamic
	if err := s.add(job); err != nil {
		return err
	}
	return s.persistDynamic()
}

// RemoveJob unschedules a dynamic job.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q: %w", name, ErrJobNotFound)
	}
	if e.job.Source == SourceConfig {
		s.mu.Unlock()
		return ErrConfigProtected
	}
	s.cron.Remove(e.id)
	delete(s.jobs, name)
	s.mu.Unlock()

	return s.persistDynamic()
}

func (s *Scheduler) PauseJob(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q: %w", name, ErrJobNotFound)
	}
	if e.job.Paused {
		s.mu.Unlock()
		return fmt.Errorf("job %q is already paused", name)
	}
	s.cron.Remove(e.id)
	e.id = 0
	e.job.Paused = true
	s.mu.Unlock()

	return s.persistDynamic()
}

func (s *Scheduler) ResumeJob(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q: %w", name, ErrJobNotFound)
	}
	if !e.job.Paused {
		s.mu.Unlock()
		return fmt.Errorf("job %q is not paused", name)
	}
	id, err := s.schedule(e)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	e.id = id
	e.job.Paused = false
	s.mu.Unlock()

	return s.persistDynamic()
}

// ListJobs returns all jobs sorted by name.
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, s.snapshotLocked(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) GetJob(name string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[name]
	if !ok {
		return Job{}, false
	}
	return s.snapshotLocked(e), true
}

// Trigger runs a job now, outside its schedule, and waits for it.
func (s *Scheduler) Trigger(name string) (*orchestrator.Result, error) {
	s.mu.RLock()
	_, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job %q: %w", name, ErrJobNotFound)
	}
	return s.execute(name)
}

func (s *Scheduler) snapshotLocked(e *entry) Job {
	j := e.job
	if e.id != 0 {
		j.NextRunAt = s.cron.Entry(e.id).Next
	}
	return j
}

func (s *Scheduler) add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Query == "" {
		return fmt.Errorf("job %q: query is required", job.Name)
	}
	if _, err := parser.Parse(job.Cron); err != nil {
		return fmt.Errorf("invalid cron for job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q: %w", job.Name, ErrJobExists)
	}
	e := &entry{job: job}
	if !job.Paused {
		id, err := s.schedule(e)
		if err != nil {
			return err
		}
		e.id = id
	}
	s.jobs[job.Name] = e
	return nil
}

func (s *Scheduler) schedule(e *entry) (cron.EntryID, error) {
	name := e.job.Name
	id, err := s.cron.AddFunc(e.job.Cron, func() {
		_, _ = s.execute(name)
	})
	if err != nil {
		return 0, fmt.Errorf("scheduling job %q: %w", name, err)
	}
	return id, nil
}

func (s *Scheduler) execute(name string) (*orchestrator.Result, error) {
	s.mu.RLock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("job %q: %w", name, ErrJobNotFound)
	}
	job := e.job
	runner := s.runner
	s.mu.RUnlock()
	if runner == nil {
		return nil, errors.New("scheduler: not started")
	}

	var runID string
	capture := orchestrator.ObserverFunc(func(_ context.Context, ev orchestrator.Event) {
		if ev.Kind == orchestrator.EventRunStarted {
			runID = ev.RunID
		}
	})

	log := s.log.With().Str("job", job.Name).Logger()
	log.Info().Str("query", job.Query).Msg("scheduled run")
	start := time.Now()
	res, err := runner.Run(s.ctx, orchestrator.Request{Query: job.Query, Input: job.Input}, capture)

	s.mu.Lock()
	if e, ok := s.jobs[name]; ok {
		e.job.LastRunID = runID
		e.job.LastRunAt = start
		if err != nil {
			e.job.LastStatus = "failed"
			e.job.LastError = err.Error()
		} else {
			e.job.LastStatus = "done"
			e.job.LastError = ""
		}
	}
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("kind", string(orchestrator.ErrorKind(err))).Msg("scheduled run failed")
		return nil, err
	}
	log.Info().Str("run_id", res.RunID).Str("summary", res.Summary).Dur("elapsed", time.Since(start)).Msg("scheduled run completed")
	return res, nil
}

func (s *Scheduler) persistPath() string {
	return filepath.Join(s.dataDir, "scheduler", "jobs.yaml")
}

func (s *Scheduler) persistDynamic() error {
	if s.dataDir == "" {
		return nil
	}

	s.mu.RLock()
	var dynamicJobs []Job
	for _, e := range s.jobs {
		if e.job.Source == SourceDynamic {
			dynamicJobs = append(dynamicJobs, e.job)
		}
	}
	s.mu.RUnlock()
	sort.Slice(dynamicJobs, func(i, j int) bool { return dynamicJobs[i].Name < dynamicJobs[j].Name })

	if err := os.MkdirAll(filepath.Dir(s.persistPath()), 0700); err != nil {
		return fmt.Errorf("creating scheduler dir: %w", err)
	}
	data, err := yaml.Marshal(dynamicJobs)
	if err != nil {
		return fmt.Errorf("marshaling jobs: %w", err)
	}
	return os.WriteFile(s.persistPath(), data, 0600)
}

func (s *Scheduler) loadDynamic() ([]Job, error) {
	if s.dataDir == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.persistPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}

	var jobs []Job
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing jobs file: %w", err)
	}
	return jobs, nil
}

// cronLogger routes robfig/cron's logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
