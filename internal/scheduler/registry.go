package scheduler

import (
	"context"
	"fmt"
)

// Job is one unit of work run on every tick.
type Job interface {
	Name() string
	Run(ctx context.Context) (JobReport, error)
}

// JobReport is what a job hands back to the scheduler. Fields are attached to
// the completion log line; Degraded marks a run that finished but did not do
// all of its work.
type JobReport struct {
	Fields   map[string]any
	Degraded bool
}

// Registry keeps jobs in registration order. Names are unique because they
// label metrics.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register ignores nil jobs and rejects a name that is already taken.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("job name required")
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
