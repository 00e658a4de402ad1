package ferret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdferret/pdferret/pkg/config"
	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/metrics"
	"github.com/pdferret/pdferret/pkg/pipeline"
)

// Input is one file handed to the dispatcher. Filename must be unique
// within a batch. Language and ExtraMetainfo carry per-file settings from
// the caller.
type Input struct {
	Filename      string
	Ref           *docmodel.FileRef
	Language      string
	ExtraMetainfo map[string]string
}

// Result is the outcome of one batch: one document per input in caller
// order (failed inputs stubbed with only the filename), plus one error
// record per failed input.
type Result struct {
	Extracted []*docmodel.Document
	Errors    []*docmodel.ProcessingError
}

// PDFerret is the top-level dispatcher: it classifies inputs by extension,
// routes each group to its pipeline, and recombines the outcome preserving
// the caller's ordering.
type PDFerret struct {
	cfg      *config.Config
	registry *pipeline.Registry
	exec     *executor.Executor
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	tracer   trace.Tracer
}

// New builds the dispatcher around a materialized recipe registry.
func New(cfg *config.Config, registry *pipeline.Registry, m *metrics.Metrics, logger *logrus.Logger) *PDFerret {
	return &PDFerret{
		cfg:      cfg,
		registry: registry,
		exec:     executor.New(cfg.Batch.Workers, cfg.Batch.BatchSize, logger),
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("pdferret.dispatcher"),
	}
}

// ExtractBatch runs every input through the pipeline its extension routes
// to. Partial failures are isolated per input; an error return means the
// dispatcher itself could not operate (a precondition violation or an
// infrastructure fault), not that some inputs failed.
func (p *PDFerret) ExtractBatch(ctx context.Context, inputs []Input, defaultLanguage string) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "dispatcher.extract_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.inputs", len(inputs)))

	if len(inputs) == 0 {
		return &Result{Extracted: []*docmodel.Document{}, Errors: []*docmodel.ProcessingError{}}, nil
	}
	if p.metrics != nil {
		p.metrics.BatchSize.Observe(float64(len(inputs)))
	}
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}

	seen := map[string]bool{}
	for _, in := range inputs {
		if in.Filename != "" && seen[in.Filename] {
			return nil, fmt.Errorf("duplicate filename in batch: %s", in.Filename)
		}
		seen[in.Filename] = true
	}

	// temp dir for materialized buffers and inter-stage artifacts; owned
	// here, released when the batch is done
	tmpDir, err := os.MkdirTemp("", "pdferret-batch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create batch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	keys := make([]string, len(inputs))
	docs := map[string]*docmodel.Document{}
	failures := executor.Failures{}
	groups := map[string]*executor.Batch{}

	for i, in := range inputs {
		key := in.Filename
		if key == "" {
			key = uuid.NewString()
		}
		keys[i] = key

		ref := in.Ref
		if ref != nil && ref.Inlined() {
			materialized, err := p.materialize(tmpDir, key, ref)
			if err != nil {
				failures[key] = docmodel.NewProcessingError(docmodel.ErrInput, in.Filename, err)
				continue
			}
			ref = materialized
		}

		lang := in.Language
		if lang == "" {
			lang = defaultLanguage
		}
		doc := docmodel.NewDocument(in.Filename, ref, lang)
		for k, v := range in.ExtraMetainfo {
			doc.MetaInfo.ExtraMetainfo[k] = v
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(in.Filename), "."))
		if _, routable := p.registry.Lookup(ext); !routable {
			failures[key] = docmodel.NewProcessingError(docmodel.ErrNoPipeline, in.Filename,
				fmt.Errorf("no pipeline registered for extension %q", ext))
			continue
		}
		if groups[ext] == nil {
			groups[ext] = executor.NewBatch()
		}
		groups[ext].Put(key, doc)
	}

	for ext, group := range groups {
		pl, _ := p.registry.Lookup(ext)
		p.logger.WithFields(logrus.Fields{
			"extension": ext,
			"pipeline":  pl.Name(),
			"items":     group.Len(),
		}).Info("dispatching group")

		done, groupFailures := pl.Run(ctx, p.exec, group)
		for _, key := range done.Keys() {
			item, _ := done.Get(key)
			docs[key] = item.(*docmodel.Document)
			if p.metrics != nil {
				p.metrics.DocumentsProcessed.WithLabelValues(ext).Inc()
			}
		}
		for key, perr := range groupFailures {
			failures[key] = perr
			if p.metrics != nil {
				p.metrics.DocumentsFailed.WithLabelValues(pl.Name(), string(perr.Kind)).Inc()
			}
		}
	}

	result := &Result{
		Extracted: make([]*docmodel.Document, 0, len(inputs)),
		Errors:    []*docmodel.ProcessingError{},
	}
	for i, key := range keys {
		if doc, ok := docs[key]; ok {
			result.Extracted = append(result.Extracted, doc)
			continue
		}
		result.Extracted = append(result.Extracted, docmodel.Stub(inputs[i].Filename))
		if perr, ok := failures[key]; ok {
			result.Errors = append(result.Errors, perr)
		}
	}
	span.SetAttributes(
		attribute.Int("batch.extracted", len(result.Extracted)),
		attribute.Int("batch.errors", len(result.Errors)),
	)
	return result, nil
}

// materialize writes an in-memory buffer to the batch directory so stages
// that need real paths (subprocess tooling, process-parallel work) can see
// the file.
func (p *PDFerret) materialize(tmpDir, key string, ref *docmodel.FileRef) (*docmodel.FileRef, error) {
	name := filepath.Base(key)
	if name == "" || name == "." {
		name = uuid.NewString()
	}
	path := filepath.Join(tmpDir, name)
	if err := os.WriteFile(path, ref.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to materialize upload: %w", err)
	}
	return docmodel.PathRef(path), nil
}
