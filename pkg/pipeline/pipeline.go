package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdferret/pdferret/pkg/executor"
)

// Pipeline is an ordered list of stages executed for one file type. Stages
// run left to right; an input that fails at stage N is excluded from stage
// N+1's input, and its first failure is the one recorded.
type Pipeline struct {
	name   string
	stages []executor.Stage
	logger *logrus.Logger
	tracer trace.Tracer
}

// New builds a pipeline from an ordered stage list.
func New(name string, logger *logrus.Logger, stages ...executor.Stage) *Pipeline {
	return &Pipeline{
		name:   name,
		stages: stages,
		logger: logger,
		tracer: otel.Tracer("pdferret.pipeline"),
	}
}

// Name returns the pipeline's identifier (usually the extension it serves).
func (p *Pipeline) Name() string { return p.name }

// Stages returns the stage list in execution order.
func (p *Pipeline) Stages() []executor.Stage { return p.stages }

// Run threads the live batch through every stage, accumulating the per-input
// error map. The returned batch and failures are disjoint; together they
// cover every input key.
func (p *Pipeline) Run(ctx context.Context, exec *executor.Executor, docs *executor.Batch) (*executor.Batch, executor.Failures) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("pipeline.name", p.name),
		attribute.Int("pipeline.stages", len(p.stages)),
		attribute.Int("batch.size", docs.Len()),
	)

	failures := executor.Failures{}
	for _, stage := range p.stages {
		if docs.Len() == 0 {
			break
		}
		p.logger.WithFields(logrus.Fields{
			"pipeline": p.name,
			"stage":    stage.Name(),
			"items":    docs.Len(),
		}).Debug("running pipeline stage")

		var stageFailures executor.Failures
		docs, stageFailures = exec.Execute(ctx, stage, docs)
		for key, perr := range stageFailures {
			failures[key] = perr
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", len(failures)))
	return docs, failures
}
