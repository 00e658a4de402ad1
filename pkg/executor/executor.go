package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pdferret/pdferret/pkg/docmodel"
)

// Mode declares how a stage's items are scheduled.
type Mode string

const (
	// ModeSerial processes items one at a time in insertion order.
	ModeSerial Mode = "serial"
	// ModeThread fans items out over a shared-process worker pool. Chosen
	// for I/O-bound stages (HTTP calls to external services).
	ModeThread Mode = "thread"
	// ModeProcess fans items out over a pool sized for CPU-bound work.
	// Items must carry path-backed file references; in-memory buffers are
	// rejected because such stages hand files to native tooling.
	ModeProcess Mode = "process"
)

// Stage is a single transformation over one item kind. ProcessSingle must be
// pure with respect to other items of the batch and must report failure by
// returning an error, never by swallowing it.
type Stage interface {
	Name() string
	Kind() docmodel.ItemKind
	Mode() Mode
	ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error)
}

// BatchStage is implemented by stages whose backend works on whole batches
// at once (LibreOffice conversions). The executor delegates to ProcessBatch
// after performing the kind check; per-item failure isolation remains the
// stage's responsibility there.
type BatchStage interface {
	Stage
	ProcessBatch(ctx context.Context, items *Batch) (*Batch, Failures)
}

// Executor runs a stage's per-item function across a keyed batch, honoring
// the stage's declared parallelism mode. It converts per-item failures into
// ProcessingError records; no error escapes Execute.
type Executor struct {
	workers   int
	batchSize int
	logger    *logrus.Logger
	tracer    trace.Tracer
}

// New creates an executor. batchSize defaults to 2×workers when zero.
func New(workers, batchSize int, logger *logrus.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 2 * workers
	}
	return &Executor{
		workers:   workers,
		batchSize: batchSize,
		logger:    logger,
		tracer:    otel.Tracer("pdferret.executor"),
	}
}

// Execute runs the stage across the batch. It returns two disjoint maps
// whose key union equals the input keys: successes keep their original keys,
// failures hold one ProcessingError per failed item.
func (e *Executor) Execute(ctx context.Context, stage Stage, in *Batch) (*Batch, Failures) {
	ctx, span := e.tracer.Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("stage.name", stage.Name()),
		attribute.String("stage.mode", string(stage.Mode())),
		attribute.Int("batch.size", in.Len()),
	)

	failures := Failures{}
	accepted := NewBatch()
	for _, key := range in.Keys() {
		item, _ := in.Get(key)
		if item.ItemKind() != stage.Kind() {
			err := fmt.Errorf("stage %s operates on %s but %s was given",
				stage.Name(), stage.Kind(), item.ItemKind())
			failures[key] = e.fail(stage, key, item, docmodel.WithKind(docmodel.ErrTypeMismatch, err))
			continue
		}
		if stage.Mode() == ModeProcess {
			if ref := itemFileRef(item); ref != nil && ref.Inlined() {
				err := fmt.Errorf("stage %s requires a path-backed file reference", stage.Name())
				failures[key] = e.fail(stage, key, item, docmodel.WithKind(docmodel.ErrInput, err))
				continue
			}
		}
		accepted.Put(key, item)
	}

	if bs, ok := stage.(BatchStage); ok {
		out, batchFailed := bs.ProcessBatch(ctx, accepted)
		for k, v := range batchFailed {
			failures[k] = v
		}
		return out, failures
	}

	var out *Batch
	switch stage.Mode() {
	case ModeThread, ModeProcess:
		out = e.runParallel(ctx, stage, accepted, failures)
	default:
		out = e.runSerial(ctx, stage, accepted, failures)
	}
	span.SetAttributes(attribute.Int("batch.failed", len(failures)))
	return out, failures
}

func (e *Executor) runSerial(ctx context.Context, stage Stage, in *Batch, failures Failures) *Batch {
	out := NewBatch()
	for _, key := range in.Keys() {
		item, _ := in.Get(key)
		if err := ctx.Err(); err != nil {
			failures[key] = e.fail(stage, key, item, err)
			continue
		}
		result, err := e.processOne(ctx, stage, item)
		if err != nil {
			failures[key] = e.fail(stage, key, item, err)
			continue
		}
		out.Put(key, result)
	}
	return out
}

// runParallel splits the batch into sub-batches and, within each, submits
// every item to the worker pool, gathering by completion. Sub-batches run
// sequentially; a cancellation observed between sub-batches fails the
// remaining items without truncating workers already in flight.
func (e *Executor) runParallel(ctx context.Context, stage Stage, in *Batch, failures Failures) *Batch {
	out := NewBatch()
	keys := in.Keys()
	for _, subKeys := range splitEvery(keys, e.batchSize) {
		if err := ctx.Err(); err != nil {
			for _, key := range subKeys {
				item, _ := in.Get(key)
				failures[key] = e.fail(stage, key, item, err)
			}
			continue
		}

		type result struct {
			key  string
			item docmodel.Item
			err  error
		}
		results := make(chan result, len(subKeys))
		var grp errgroup.Group
		grp.SetLimit(e.workers)
		for _, key := range subKeys {
			key := key
			item, _ := in.Get(key)
			grp.Go(func() error {
				processed, err := e.processOne(ctx, stage, item)
				results <- result{key: key, item: processed, err: err}
				return nil
			})
		}
		grp.Wait()
		close(results)

		for r := range results {
			if r.err != nil {
				item, _ := in.Get(r.key)
				failures[r.key] = e.fail(stage, r.key, item, r.err)
				continue
			}
			out.Put(r.key, r.item)
		}
	}
	return out
}

// processOne invokes the stage's per-item function, converting panics into
// errors so a misbehaving stage cannot take down the batch.
func (e *Executor) processOne(ctx context.Context, stage Stage, item docmodel.Item) (out docmodel.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v\n%s", stage.Name(), r, debug.Stack())
		}
	}()
	return stage.ProcessSingle(ctx, item)
}

func (e *Executor) fail(stage Stage, key string, item docmodel.Item, err error) *docmodel.ProcessingError {
	file := docmodel.ItemFilename(item)
	if file == "" {
		file = key
	}
	perr := docmodel.NewProcessingError(classify(err), file, err)
	e.logger.WithFields(logrus.Fields{
		"stage": stage.Name(),
		"key":   key,
		"file":  file,
		"kind":  perr.Kind,
	}).WithError(err).Error("stage failed for item")
	return perr
}

func classify(err error) docmodel.ErrorKind {
	var kinded *docmodel.KindedError
	switch {
	case errors.As(err, &kinded):
		return kinded.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return docmodel.ErrTimeout
	case errors.Is(err, context.Canceled):
		return docmodel.ErrCancelled
	default:
		return docmodel.ErrExternal
	}
}

func itemFileRef(item docmodel.Item) *docmodel.FileRef {
	switch v := item.(type) {
	case *docmodel.Document:
		if v.MetaInfo != nil {
			return v.MetaInfo.FileFeatures.File
		}
	case *docmodel.MetaInfo:
		return v.FileFeatures.File
	case *docmodel.FileRef:
		return v
	}
	return nil
}
