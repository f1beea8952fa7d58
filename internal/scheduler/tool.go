package scheduler

import (
	"context"
	"errors"
	"strings"

	"github.com/spinup/spinup/internal/orchestrator"
)

const ListJobsActionID = "listScheduledJobs"

// ListJobsAction exposes the job table to the decider, so a run can report
// on what is scheduled and how the last scheduled runs went.
func (s *Scheduler) ListJobsAction() orchestrator.Action {
	return orchestrator.Action{
		Config: orchestrator.ActionConfig{
			ID: ListJobsActionID,
			Metadata: orchestrator.ActionMetadata{
				Description: "Lists scheduled jobs with their cron schedule, next run and last outcome",
			},
		},
		Run: func(context.Context, *orchestrator.ActionContext) (any, error) {
			jobs := s.ListJobs()
			out := make([]map[string]any, 0, len(jobs))
			for _, j := range jobs {
				m := map[string]any{
					"name":   j.Name,
					"cron":   j.Cron,
					"query":  j.Query,
					"paused": j.Paused,
					"source": j.Source,
				}
				if !j.NextRunAt.IsZero() {
					m["nextRunAt"] = j.NextRunAt
				}
				if j.LastStatus != "" {
					m["lastStatus"] = j.LastStatus
					m["lastRunId"] = j.LastRunID
				}
				if j.LastError != "" {
					m["lastError"] = j.LastError
				}
				out = append(out, m)
			}
			return out, nil
		},
	}
}

const (
	ScheduleQueryActionID = "scheduleQuery"
	PauseJobActionID      = "pauseScheduledJob"
	ResumeJobActionID     = "resumeScheduledJob"
	RemoveJobActionID     = "removeScheduledJob"
)

// Actions returns every scheduler action. Job fields come from the run's
// structured input under "job": an object {name, cron, query, input} for
// scheduleQuery, or just the job name (string or {name}) for the others.
func (s *Scheduler) Actions() []orchestrator.Action {
	return []orchestrator.Action{
		s.ListJobsAction(),
		s.ScheduleQueryAction(),
		s.jobAction(PauseJobActionID, "Pauses the scheduled job named in input.job", "paused", s.PauseJob),
		s.jobAction(ResumeJobActionID, "Resumes the paused scheduled job named in input.job", "resumed", s.ResumeJob),
		s.jobAction(RemoveJobActionID, "Removes the dynamic scheduled job named in input.job; config jobs cannot be removed", "removed", s.RemoveJob),
	}
}

// ScheduleQueryAction creates a dynamic job from input.job. Dynamic jobs
// survive restarts.
func (s *Scheduler) ScheduleQueryAction() orchestrator.Action {
	return orchestrator.Action{
		Config: orchestrator.ActionConfig{
			ID: ScheduleQueryActionID,
			Metadata: orchestrator.ActionMetadata{
				Description: "Schedules a query to run on a cron expression, from input.job {name, cron, query}",
			},
		},
		Run: func(_ context.Context, actx *orchestrator.ActionContext) (any, error) {
			spec, ok := actx.Input["job"].(map[string]any)
			if !ok {
				return nil, errors.New(`input "job" must be an object with name, cron and query`)
			}
			job := Job{
				Name:  stringField(spec, "name"),
				Cron:  stringField(spec, "cron"),
				Query: stringField(spec, "query"),
			}
			if in, ok := spec["input"].(map[string]any); ok {
				job.Input = in
			}
			if err := s.AddJob(job); err != nil {
				return nil, err
			}
			created, _ := s.GetJob(job.Name)
			return map[string]any{"name": created.Name, "cron": created.Cron, "nextRunAt": created.NextRunAt}, nil
		},
	}
}

func (s *Scheduler) jobAction(id, description, verb string, op func(name string) error) orchestrator.Action {
	return orchestrator.Action{
		Config: orchestrator.ActionConfig{
			ID:       id,
			Metadata: orchestrator.ActionMetadata{Description: description},
		},
		Run: func(_ context.Context, actx *orchestrator.ActionContext) (any, error) {
			name := jobName(actx.Input["job"])
			if name == "" {
				return nil, errors.New(`input "job" must name a scheduled job`)
			}
			if err := op(name); err != nil {
				return nil, err
			}
			return map[string]any{"name": name, verb: true}, nil
		},
	}
}

func jobName(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		return stringField(x, "name")
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
