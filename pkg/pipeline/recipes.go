package pipeline

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/chunker"
	"github.com/pdferret/pdferret/pkg/config"
	"github.com/pdferret/pdferret/pkg/extract"
	"github.com/pdferret/pdferret/pkg/llm"
)

// Deps bundles everything recipe construction needs: the configuration,
// the model handles, and the capability backends the adapter stages call.
type Deps struct {
	Config      *config.Config
	TextModel   llm.Model
	VisionModel llm.Model
	Inspector   extract.PDFInspector
	OCR         extract.OCRBackend
	Rasterizer  extract.PageRasterizer
	Markdown    extract.MarkdownConverter
	Speller     *chunker.Speller
	Logger      *logrus.Logger
}

// Registry maps a lowercased file extension to the pipeline that serves it.
// Pipelines are materialized once per registry; stages carry their bound
// parameters from construction.
type Registry struct {
	pipelines map[string]*Pipeline
}

// NewRegistry returns an empty registry; extensions are opted in with
// Register.
func NewRegistry() *Registry {
	return &Registry{pipelines: map[string]*Pipeline{}}
}

// Lookup fetches the pipeline for an extension.
func (r *Registry) Lookup(ext string) (*Pipeline, bool) {
	p, ok := r.pipelines[ext]
	return p, ok
}

// Register installs or replaces the pipeline for an extension.
func (r *Registry) Register(ext string, p *Pipeline) {
	r.pipelines[ext] = p
}

// Extensions lists the routable extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.pipelines))
	for ext := range r.pipelines {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// BuildRegistry materializes the default recipe set. Different extensions
// take different paths; extensions absent here are unroutable and fail with
// a NoPipeline error at dispatch.
func BuildRegistry(deps Deps) *Registry {
	cfg := deps.Config
	log := deps.Logger

	officeMeta := func() *extract.OfficeMetaExtractor { return extract.NewOfficeMetaExtractor(log) }
	thumbnailer := func() *extract.LibreOfficeThumbnailer { return extract.NewLibreOfficeThumbnailer(log) }
	markdownExtractor := func() *extract.MarkdownExtractor {
		return extract.NewMarkdownExtractor(deps.Markdown, cfg.Chunker.LinesPerChunk, log)
	}
	postProcessor := func() *llm.PostProcessor {
		return llm.NewPostProcessor(deps.TextModel, log, llm.WithTableDescription())
	}
	simpleChunker := func() *chunker.SimpleChunker {
		return chunker.NewSimpleChunker(cfg.Chunker.MaxChunkLen, cfg.Chunker.ChunkOverlap, log)
	}
	visual := func() *extract.VisualPageExtractor {
		return extract.NewVisualPageExtractor(deps.VisionModel, deps.Rasterizer,
			cfg.Visual.MaxPages, cfg.Visual.DPI, true, log)
	}
	tika := func(saveRawMetadata bool) *extract.TikaExtractor {
		return extract.NewTikaExtractor(cfg.Tika.URL, cfg.Tika.OCRStrategy,
			cfg.Chunker.LinesPerChunk, saveRawMetadata, deps.Markdown, cfg.Tika.Timeout, log)
	}
	spreadsheet := func() *extract.TikaSpreadsheetExtractor {
		return extract.NewTikaSpreadsheetExtractor(cfg.Tika.URL, cfg.Tika.Timeout, log)
	}
	convertTo := func(format string) *extract.LibreOfficeConverter {
		return extract.NewLibreOfficeConverter(format, log)
	}
	standardChunker := func() *chunker.StandardChunker {
		return chunker.NewStandardChunker(deps.Speller, true, log)
	}
	langDetect := extract.LanguageDetector{}

	r := &Registry{pipelines: map[string]*Pipeline{}}

	// pdf: text+attachments with raw metadata, visual pages, LLM, chunker
	r.Register("pdf", New("pdf", log,
		tika(true),
		visual(),
		langDetect,
		postProcessor(),
		standardChunker(),
	))

	// docx and friends: XML metadata, thumbnail, markdown conversion
	for _, ext := range []string{"docx", "odt"} {
		r.Register(ext, New(ext, log,
			officeMeta(),
			thumbnailer(),
			markdownExtractor(),
			langDetect,
			postProcessor(),
			simpleChunker(),
		))
	}

	// doc is not zip-based: convert to docx first, then the docx path
	r.Register("doc", New("doc", log,
		thumbnailer(),
		convertTo("docx"),
		officeMeta(),
		markdownExtractor(),
		langDetect,
		postProcessor(),
		simpleChunker(),
	))

	// presentations: metadata, pdf conversion, text + visual pages
	for _, ext := range []string{"ppt", "pptx"} {
		r.Register(ext, New(ext, log,
			officeMeta(),
			convertTo("pdf"),
			tika(false),
			visual(),
			langDetect,
			postProcessor(),
			simpleChunker(),
		))
	}

	// spreadsheets become markdown tables; no chunker downstream
	for _, ext := range []string{"xls", "xlsx", "ods"} {
		r.Register(ext, New(ext, log,
			officeMeta(),
			thumbnailer(),
			spreadsheet(),
			langDetect,
			postProcessor(),
		))
	}

	r.Register("txt", New("txt", log,
		thumbnailer(),
		extract.NewRawTextExtractor(cfg.Chunker.LinesPerChunk),
		langDetect,
		postProcessor(),
		simpleChunker(),
	))

	// general office-adjacent formats go through the partitioner service
	general := GeneralFilePipeline(deps)
	for _, ext := range []string{"html", "htm", "md", "rtf", "csv", "epub"} {
		r.Register(ext, general)
	}

	if cfg.Pipeline.ScientificPDF {
		r.Register("pdf", ScientificPDFPipeline(deps))
	}
	return r
}

// ScientificPDFPipeline assembles the GROBID-centered variant for academic
// corpora: scan detection with OCR fallback, TEI extraction with metadata,
// a PDF thumbnail, visual pages, the LLM postprocessor and the standard
// chunker. The partitioner service is not part of this pipeline.
func ScientificPDFPipeline(deps Deps) *Pipeline {
	cfg := deps.Config
	log := deps.Logger
	return New("pdf_scientific", log,
		extract.NewScannedPDFDetector(deps.Inspector, deps.OCR,
			cfg.OCR.MaxPages, cfg.OCR.TextProbeMin, log),
		extract.NewGrobidTextExtractor(cfg.Grobid.URL, cfg.Grobid.MaxPages, true,
			deps.Inspector, cfg.Grobid.Timeout, log),
		extract.NewPDFThumbnailer(deps.Rasterizer, log),
		extract.NewVisualPageExtractor(deps.VisionModel, deps.Rasterizer,
			cfg.Visual.MaxPages, cfg.Visual.DPI, false, log),
		llm.NewPostProcessor(deps.TextModel, log),
		chunker.NewStandardChunker(deps.Speller, true, log),
	)
}

// GeneralFilePipeline routes files of general office lineage through the
// partitioner service; the registry binds it to the formats no dedicated
// recipe claims.
func GeneralFilePipeline(deps Deps) *Pipeline {
	cfg := deps.Config
	log := deps.Logger
	return New("general", log,
		extract.NewPartitionTextExtractor(cfg.Partition.URL, cfg.Partition.Strategy,
			cfg.Partition.MinTextLen, cfg.Batch.Workers, cfg.Partition.Timeout, log),
		extract.LanguageDetector{},
		llm.NewPostProcessor(deps.TextModel, log, llm.WithTableDescription()),
		chunker.NewStandardChunker(deps.Speller, true, log),
	)
}
