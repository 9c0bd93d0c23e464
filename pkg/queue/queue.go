// Package queue is the background job pipeline: a file-backed store of
// one-shot jobs drained by a single worker, plus recurring schedules that
// enqueue jobs when due. The orchestrator inserts complex tasks here so the
// chat loop stays responsive.
package queue

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// Payload is what a job asks the agent to do and where the answer goes.
type Payload struct {
	Prompt     string `json:"prompt"`
	SessionKey string `json:"session_key,omitempty"`
	Channel    string `json:"channel,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
}

// Job is a single unit of background work. Attempts counts handler runs,
// including the one that finally succeeded or failed.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Payload    Payload    `json:"payload"`
	Priority   int        `json:"priority,omitempty"`
	Attempts   int        `json:"attempts"`
	Source     string     `json:"source,omitempty"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// Schedule kinds.
const (
	ScheduleEvery = "every"
	ScheduleCron  = "cron"
)

// Schedule describes when a recurring job fires: either a fixed interval
// in seconds or a five-field cron expression.
type Schedule struct {
	Kind     string `json:"kind"`
	EverySec int64  `json:"every_sec,omitempty"`
	Expr     string `json:"expr,omitempty"`
}

// ScheduledJob is a recurring template. It never runs itself; when due, a
// one-shot Job carrying its payload is enqueued.
type ScheduledJob struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Enabled   bool       `json:"enabled"`
	Schedule  Schedule   `json:"schedule"`
	Payload   Payload    `json:"payload"`
	Priority  int        `json:"priority,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

func (sj *ScheduledJob) clone() *ScheduledJob {
	c := *sj
	if sj.LastRunAt != nil {
		t := *sj.LastRunAt
		c.LastRunAt = &t
	}
	if sj.NextRunAt != nil {
		t := *sj.NextRunAt
		c.NextRunAt = &t
	}
	return &c
}

// Describe renders the schedule for lists and the dashboard.
func (s Schedule) Describe() string {
	switch s.Kind {
	case ScheduleEvery:
		return "every " + (time.Duration(s.EverySec) * time.Second).String()
	case ScheduleCron:
		return s.Expr
	}
	return "one-time"
}

// Handler processes one claimed job and returns the result text delivered
// back to the requesting chat.
type Handler func(ctx context.Context, job *Job) (string, error)

// Clock abstracts time so due-schedule checks are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IsValidExpr reports whether expr parses as a five-field cron expression.
func IsValidExpr(expr string) bool {
	return gronx.New().IsValid(expr)
}
