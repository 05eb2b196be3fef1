package training

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle phase of an asynchronous training job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job tracks one asynchronous training run.
type Job struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	State      JobState   `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Report     *Report    `json:"report,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Jobs tracks asynchronous training runs by identifier. Completed jobs are
// kept for inspection until the process exits.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*Job)}
}

// Start registers a job and runs fn in the background. The returned job ID
// is immediately pollable via Get.
func (j *Jobs) Start(projectID string, fn func() (*Report, error)) string {
	job := &Job{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		State:     JobRunning,
		StartedAt: time.Now(),
	}
	j.mu.Lock()
	j.jobs[job.ID] = job
	j.mu.Unlock()

	go func() {
		report, err := fn()
		now := time.Now()
		j.mu.Lock()
		defer j.mu.Unlock()
		job.FinishedAt = &now
		job.Report = report
		if err != nil {
			job.State = JobFailed
			job.Error = err.Error()
			return
		}
		job.State = JobCompleted
	}()
	return job.ID
}

// Get returns a copy of the job's current state.
func (j *Jobs) Get(id string) (Job, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	job, ok := j.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("unknown job %q", id)
	}
	return *job, nil
}

// Running reports whether any job for the project is still in flight,
// which callers use to refuse overlapping training runs.
func (j *Jobs) Running(projectID string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, job := range j.jobs {
		if job.ProjectID == projectID && job.State == JobRunning {
			return true
		}
	}
	return false
}
