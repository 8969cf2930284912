package jobs

import (
	"context"

	"github.com/opencta/quant/pkg/logger"
)

// PipelineJob runs the live strategy pipeline after the close: a warm-up
// simulation up to today, cash reconciliation against the broker account and
// persistence of positions, returns and executions. The pipeline itself is
// assembled by the caller since it needs fresh state for every run.
type PipelineJob struct {
	run      func(ctx context.Context) error
	schedule string
	logger   *logger.Logger
}

// NewPipelineJob creates a new PipelineJob.
func NewPipelineJob(run func(ctx context.Context) error, schedule string, log *logger.Logger) *PipelineJob {
	return &PipelineJob{run: run, schedule: schedule, logger: log}
}

func (j *PipelineJob) Name() string { return "live-pipeline" }

func (j *PipelineJob) Schedule() string { return j.schedule }

func (j *PipelineJob) Run(ctx context.Context) error {
	j.logger.Info("Running live pipeline")
	return j.run(ctx)
}
