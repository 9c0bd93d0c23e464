package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/droidgram/droidgram/pkg/logger"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 2

	// Terminal jobs kept in the store for `jobs list` and the dashboard.
	// Older ones are dropped on the next save.
	keepFinished = 50
)

// storeFile is the on-disk shape of jobs.json.
type storeFile struct {
	Jobs      []*Job          `json:"jobs"`
	Schedules []*ScheduledJob `json:"schedules,omitempty"`
}

// Service owns the job store and the worker goroutine that drains it.
// All mutations persist immediately with a temp-file + rename so a crash
// never leaves a half-written store.
type Service struct {
	mu        sync.Mutex
	path      string
	jobs      []*Job
	schedules []*ScheduledJob

	clk  Clock
	gron *gronx.Gronx

	handlerMu sync.RWMutex
	handler   Handler

	maxAttempts  int
	pollInterval time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewService loads (or creates) the job store at storePath. A nil clock
// means wall-clock time. Jobs left running by a previous process are
// requeued so no work is lost to a crash.
func NewService(storePath string, clk Clock) *Service {
	if clk == nil {
		clk = systemClock{}
	}

	s := &Service{
		path:         storePath,
		clk:          clk,
		gron:         gronx.New(),
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
	}

	os.MkdirAll(filepath.Dir(storePath), 0755)
	s.load()

	return s
}

// SetHandler installs the function the worker runs for each claimed job.
// Until a handler is set the worker leaves queued jobs untouched.
func (s *Service) SetHandler(h Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = h
}

// SetMaxAttempts caps how many times a failing job is run before it is
// marked failed.
func (s *Service) SetMaxAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.maxAttempts = n
}

// SetPollInterval changes how often the worker wakes up when idle.
func (s *Service) SetPollInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		d = defaultPollInterval
	}
	s.pollInterval = d
}

// Enqueue adds a one-shot job and returns a copy of it.
func (s *Service) Enqueue(payload Payload, priority int) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: s.clk.Now(),
	}
	s.jobs = append(s.jobs, job)

	if err := s.saveLocked(); err != nil {
		s.jobs = s.jobs[:len(s.jobs)-1]
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	logger.InfoCF("queue", "Job enqueued", map[string]interface{}{
		"job_id":   job.ID,
		"priority": priority,
	})
	return job.clone(), nil
}

// Get returns a copy of the job with the given ID.
func (s *Service) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findJobLocked(id)
	if job == nil {
		return nil, false
	}
	return job.clone(), true
}

// Jobs returns copies of stored jobs, newest first. With includeFinished
// false only queued and running jobs are returned.
func (s *Service) Jobs(includeFinished bool) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !includeFinished && j.Finished() {
			continue
		}
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// RemoveJob deletes a job by ID. Running jobs cannot be removed.
func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, j := range s.jobs {
		if j.ID != id {
			continue
		}
		if j.Status == StatusRunning {
			return false
		}
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		s.saveLocked()
		return true
	}
	return false
}

// Counts returns how many jobs sit in each lifecycle state.
func (s *Service) Counts() (queued, running, done, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		switch j.Status {
		case StatusQueued:
			queued++
		case StatusRunning:
			running++
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		}
	}
	return queued, running, done, failed
}

// Depth is the number of jobs waiting to run.
func (s *Service) Depth() int {
	queued, _, _, _ := s.Counts()
	return queued
}

// AddScheduled registers a recurring job. Cron expressions are validated
// up front; the first fire waits for the next boundary.
func (s *Service) AddScheduled(name string, schedule Schedule, payload Payload, priority int) (*ScheduledJob, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("schedule name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch schedule.Kind {
	case ScheduleEvery:
		if schedule.EverySec < 1 {
			return nil, fmt.Errorf("interval must be at least 1 second")
		}
	case ScheduleCron:
		if !s.gron.IsValid(schedule.Expr) {
			return nil, fmt.Errorf("invalid cron expression: %q", schedule.Expr)
		}
	default:
		return nil, fmt.Errorf("unknown schedule kind: %q", schedule.Kind)
	}

	now := s.clk.Now()
	sj := &ScheduledJob{
		ID:        uuid.NewString(),
		Name:      name,
		Enabled:   true,
		Schedule:  schedule,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: now,
		NextRunAt: s.nextRunLocked(schedule, now),
	}
	s.schedules = append(s.schedules, sj)

	if err := s.saveLocked(); err != nil {
		s.schedules = s.schedules[:len(s.schedules)-1]
		return nil, fmt.Errorf("failed to persist schedule: %w", err)
	}

	logger.InfoCF("queue", "Schedule added", map[string]interface{}{
		"name":     name,
		"schedule": schedule.Describe(),
	})
	return sj.clone(), nil
}

// Scheduled returns copies of registered schedules, oldest first. With
// includeDisabled false only enabled ones are returned.
func (s *Service) Scheduled(includeDisabled bool) []*ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ScheduledJob, 0, len(s.schedules))
	for _, sj := range s.schedules {
		if !includeDisabled && !sj.Enabled {
			continue
		}
		out = append(out, sj.clone())
	}
	return out
}

// EnableScheduled flips a schedule on or off and returns a copy, or nil
// if no schedule has that ID. Re-enabling recomputes the next fire time
// so a stale deadline does not fire immediately.
func (s *Service) EnableScheduled(id string, enabled bool) *ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sj := range s.schedules {
		if sj.ID != id {
			continue
		}
		sj.Enabled = enabled
		if enabled {
			sj.NextRunAt = s.nextRunLocked(sj.Schedule, s.clk.Now())
		}
		s.saveLocked()
		return sj.clone()
	}
	return nil
}

// RemoveScheduled deletes a schedule by ID.
func (s *Service) RemoveScheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sj := range s.schedules {
		if sj.ID != id {
			continue
		}
		s.schedules = append(s.schedules[:i], s.schedules[i+1:]...)
		s.saveLocked()
		return true
	}
	return false
}

// Start launches the worker goroutine. Calling Start on a running service
// is a no-op.
func (s *Service) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	logger.InfoCF("queue", "Job worker started", map[string]interface{}{
		"store": s.path,
	})
}

// Stop cancels the worker and waits for the in-flight job to return.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.cancel()
	<-s.done
	logger.InfoC("queue", "Job worker stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	for {
		s.fireDueSchedules()
		s.drain(ctx)

		s.mu.Lock()
		poll := s.pollInterval
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}
	}
}

// drain runs claimed jobs until the queue is empty or the context ends.
// Without a handler nothing is claimed, so no attempt is burned.
func (s *Service) drain(ctx context.Context) {
	for ctx.Err() == nil {
		s.handlerMu.RLock()
		handler := s.handler
		s.handlerMu.RUnlock()
		if handler == nil {
			return
		}

		job := s.claimNext()
		if job == nil {
			return
		}

		logger.InfoCF("queue", "Job started", map[string]interface{}{
			"job_id":  job.ID,
			"attempt": job.Attempts,
		})

		result, err := handler(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown interrupted the job; give the attempt back.
				s.requeueInterrupted(job.ID)
				return
			}
			requeued := s.fail(job.ID, err.Error())
			logger.WarnCF("queue", "Job failed", map[string]interface{}{
				"job_id":  job.ID,
				"attempt": job.Attempts,
				"retry":   requeued,
				"error":   err.Error(),
			})
			continue
		}

		s.complete(job.ID, result)
		logger.InfoCF("queue", "Job finished", map[string]interface{}{
			"job_id": job.ID,
		})
	}
}

// claimNext picks the highest-priority queued job (FIFO within a priority),
// marks it running and returns a copy.
func (s *Service) claimNext() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Job
	for _, j := range s.jobs {
		if j.Status != StatusQueued {
			continue
		}
		if best == nil || j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.CreatedAt.Before(best.CreatedAt)) {
			best = j
		}
	}
	if best == nil {
		return nil
	}

	now := s.clk.Now()
	best.Status = StatusRunning
	best.Attempts++
	best.StartedAt = &now
	s.saveLocked()
	return best.clone()
}

func (s *Service) complete(id, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findJobLocked(id)
	if job == nil {
		return
	}

	now := s.clk.Now()
	job.Status = StatusDone
	job.Result = result
	job.Error = ""
	job.FinishedAt = &now
	s.trimFinishedLocked()
	s.saveLocked()
}

// fail records the error and either requeues the job for another attempt
// or marks it failed once attempts are exhausted. Returns true when the
// job was requeued.
func (s *Service) fail(id, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findJobLocked(id)
	if job == nil {
		return false
	}

	job.Error = errMsg
	if job.Attempts < s.maxAttempts {
		job.Status = StatusQueued
		job.StartedAt = nil
		s.saveLocked()
		return true
	}

	now := s.clk.Now()
	job.Status = StatusFailed
	job.FinishedAt = &now
	s.trimFinishedLocked()
	s.saveLocked()
	return false
}

// requeueInterrupted puts a job cancelled mid-run back in the queue
// without counting the interrupted run as an attempt.
func (s *Service) requeueInterrupted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findJobLocked(id)
	if job == nil || job.Status != StatusRunning {
		return
	}
	job.Status = StatusQueued
	job.StartedAt = nil
	if job.Attempts > 0 {
		job.Attempts--
	}
	s.saveLocked()
}

// fireDueSchedules enqueues a job for every enabled schedule whose time
// has come. A schedule with its previous job still pending is skipped so
// a slow agent does not pile up duplicates.
func (s *Service) fireDueSchedules() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	changed := false
	for _, sj := range s.schedules {
		if !sj.Enabled || sj.NextRunAt == nil || now.Before(*sj.NextRunAt) {
			continue
		}
		changed = true
		if s.hasPendingFromLocked(sj.Name) {
			sj.NextRunAt = s.nextRunLocked(sj.Schedule, now)
			continue
		}

		fired := now
		job := &Job{
			ID:        uuid.NewString(),
			Status:    StatusQueued,
			Payload:   sj.Payload,
			Priority:  sj.Priority,
			Source:    sj.Name,
			CreatedAt: now,
		}
		s.jobs = append(s.jobs, job)
		sj.LastRunAt = &fired
		sj.NextRunAt = s.nextRunLocked(sj.Schedule, now)

		logger.InfoCF("queue", "Schedule fired", map[string]interface{}{
			"name":   sj.Name,
			"job_id": job.ID,
		})
	}
	if changed {
		s.saveLocked()
	}
}

func (s *Service) hasPendingFromLocked(source string) bool {
	for _, j := range s.jobs {
		if j.Source == source && !j.Finished() {
			return true
		}
	}
	return false
}

// nextRunLocked computes the fire time after `from`. Overdue time while
// the process was down is not replayed; the schedule advances from now.
func (s *Service) nextRunLocked(schedule Schedule, from time.Time) *time.Time {
	switch schedule.Kind {
	case ScheduleEvery:
		t := from.Add(time.Duration(schedule.EverySec) * time.Second)
		return &t
	case ScheduleCron:
		t, err := gronx.NextTickAfter(schedule.Expr, from, false)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}

func (s *Service) findJobLocked(id string) *Job {
	for _, j := range s.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// trimFinishedLocked drops the oldest terminal jobs beyond keepFinished.
func (s *Service) trimFinishedLocked() {
	finished := 0
	for _, j := range s.jobs {
		if j.Finished() {
			finished++
		}
	}
	if finished <= keepFinished {
		return
	}

	drop := finished - keepFinished
	kept := s.jobs[:0]
	for _, j := range s.jobs {
		if drop > 0 && j.Finished() {
			drop--
			continue
		}
		kept = append(kept, j)
	}
	s.jobs = kept
}

func (s *Service) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("queue", "Failed to read job store", map[string]interface{}{
				"path":  s.path,
				"error": err.Error(),
			})
		}
		return
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		logger.WarnCF("queue", "Job store unreadable, starting empty", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}
	s.jobs = f.Jobs
	s.schedules = f.Schedules

	recovered := 0
	for _, j := range s.jobs {
		if j.Status == StatusRunning {
			j.Status = StatusQueued
			j.StartedAt = nil
			recovered++
		}
	}
	now := s.clk.Now()
	for _, sj := range s.schedules {
		if sj.Enabled && sj.NextRunAt == nil {
			sj.NextRunAt = s.nextRunLocked(sj.Schedule, now)
		}
	}

	if recovered > 0 {
		logger.InfoCF("queue", "Requeued interrupted jobs", map[string]interface{}{
			"count": recovered,
		})
		s.saveLocked()
	}
}

// saveLocked writes the store atomically. Must be called with s.mu held.
func (s *Service) saveLocked() error {
	f := storeFile{Jobs: s.jobs, Schedules: s.schedules}
	if f.Jobs == nil {
		f.Jobs = []*Job{}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job store: %w", err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
