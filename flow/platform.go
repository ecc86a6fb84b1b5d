package flow

import "context"

// Plan is a job compiled by a Platform. Its representation is private to the
// platform that produced it.
type Plan interface {
	Job() *Job
}

// Platform is an execution engine for jobs.
//
// Run must block until every effect of the plan (store merges, sink writes) is
// observable by the caller, or until it fails.
type Platform interface {
	// Name identifies the platform in logs and metrics.
	Name() string

	// Plan compiles a job.
	Plan(job *Job) (Plan, error)

	// Run executes a plan to completion.
	Run(ctx context.Context, plan Plan) error
}
