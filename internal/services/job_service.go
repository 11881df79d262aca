package services

import (
	"github.com/sjperalta/interlock-api/internal/jobs"
)

// JobStatus reports the background worker and its recurring compliance jobs
type JobStatus struct {
	Running       bool                   `json:"running"`
	ActiveJobs    int                    `json:"active_jobs,omitempty"`
	CompletedJobs int64                  `json:"completed_jobs,omitempty"`
	FailedJobs    int64                  `json:"failed_jobs,omitempty"`
	QueueLength   int                    `json:"queue_length,omitempty"`
	MaxConcurrent int                    `json:"max_concurrent,omitempty"`
	LastRuns      map[string]jobs.JobRun `json:"last_runs,omitempty"`
}

type JobService struct {
	worker *jobs.Worker
}

func NewJobService(worker *jobs.Worker) *JobService {
	return &JobService{worker: worker}
}

// Status is a snapshot; with no worker configured side effects run inline
// and the status reports running=false.
func (s *JobService) Status() JobStatus {
	if s.worker == nil {
		return JobStatus{}
	}
	stats := s.worker.GetStats()
	return JobStatus{
		Running:       true,
		ActiveJobs:    stats.ActiveJobs,
		CompletedJobs: stats.CompletedJobs,
		FailedJobs:    stats.FailedJobs,
		QueueLength:   stats.QueueLength,
		MaxConcurrent: stats.MaxConcurrent,
		LastRuns:      s.worker.LastRuns(),
	}
}

// LastRun returns the most recent run of the named recurring job
func (s *JobService) LastRun(name string) (jobs.JobRun, bool) {
	if s.worker == nil {
		return jobs.JobRun{}, false
	}
	run, ok := s.worker.LastRuns()[name]
	return run, ok
}
