package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/utils"
)

const maxTableDescriptions = 5

// metadataResponse is the structured reply of the metadata extraction call.
type metadataResponse struct {
	Title            string   `json:"title"`
	DocumentType     string   `json:"document_type"`
	People           []string `json:"people"`
	MentionedDate    string   `json:"mentioned_date"`
	DetectedLanguage string   `json:"detected_language"`
}

// summaryResponse is the structured reply of the summary call.
type summaryResponse struct {
	ContentSummary    string `json:"content_summary"`
	SearchDescription string `json:"search_description"`
}

type tableResponse struct {
	Description string `json:"description"`
}

// PostProcessor is the pipeline stage that fills metadata gaps and produces
// the searchable summary via structured LLM calls. It is I/O bound and runs
// thread-parallel.
type PostProcessor struct {
	model             Model
	summaryMaxChunks  int
	tableDescription  bool
	overwriteAbstract bool
	logger            *logrus.Logger
	tracer            trace.Tracer
}

// PostProcessorOption mutates construction-time settings.
type PostProcessorOption func(*PostProcessor)

// WithTableDescription enables rewriting of table chunk text.
func WithTableDescription() PostProcessorOption {
	return func(p *PostProcessor) { p.tableDescription = true }
}

// WithOverwriteAbstract lets the summary replace an existing abstract.
func WithOverwriteAbstract() PostProcessorOption {
	return func(p *PostProcessor) { p.overwriteAbstract = true }
}

// NewPostProcessor builds the stage around a text model handle.
func NewPostProcessor(model Model, logger *logrus.Logger, opts ...PostProcessorOption) *PostProcessor {
	p := &PostProcessor{
		model:            model,
		summaryMaxChunks: 5,
		logger:           logger,
		tracer:           otel.Tracer("pdferret.llm.postprocessor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PostProcessor) Name() string            { return "llm_postprocessor" }
func (p *PostProcessor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (p *PostProcessor) Mode() executor.Mode     { return executor.ModeThread }

func (p *PostProcessor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	ctx, span := p.tracer.Start(ctx, "llm.postprocess")
	defer span.End()

	lang := PromptLanguage(doc.MetaInfo.Language)
	span.SetAttributes(attribute.String("doc.language", lang))

	if p.tableDescription {
		p.describeTables(ctx, doc, lang)
	}
	if err := p.fillMetadata(ctx, doc, lang); err != nil {
		return nil, err
	}
	if err := p.fillSummary(ctx, doc, lang); err != nil {
		return nil, err
	}
	return doc, nil
}

// describeTables rewrites the text of up to maxTableDescriptions table
// chunks with a model description of their HTML. Per-table failures only
// log; a missing table description never fails the document.
func (p *PostProcessor) describeTables(ctx context.Context, doc *docmodel.Document, lang string) {
	described := 0
	for _, chunk := range doc.Chunks {
		if chunk.Type != docmodel.ChunkTable || described >= maxTableDescriptions {
			continue
		}
		var resp tableResponse
		err := StructuredResponse(ctx, p.model, SystemPrompt(PurposeTable, lang),
			string(chunk.NonEmbeddable), nil, 0.2, 0, &resp)
		if err != nil {
			p.logger.WithError(err).Warn("failed to generate table description")
			continue
		}
		if resp.Description != "" {
			chunk.Text = resp.Description
		}
		described++
	}
}

// fillMetadata asks the model for title, type, people, mentioned date and
// detected language, updating only non-empty fields.
func (p *PostProcessor) fillMetadata(ctx context.Context, doc *docmodel.Document, lang string) error {
	input := p.buildContext(doc, 2, false)
	input = p.truncateToBudget(input)

	var resp metadataResponse
	err := StructuredResponse(ctx, p.model, SystemPrompt(PurposeMetadata, lang), input, nil, 0.2, 500, &resp)
	if err != nil {
		return err
	}
	meta := doc.MetaInfo
	if resp.Title != "" {
		meta.Title = resp.Title
	}
	if resp.DocumentType != "" {
		meta.DocumentType = resp.DocumentType
	}
	if len(resp.People) > 0 && len(meta.Authors) == 0 {
		meta.Authors = resp.People
	}
	if resp.MentionedDate != "" {
		meta.MentionedDate = resp.MentionedDate
	}
	if resp.DetectedLanguage != "" {
		meta.DetectedLanguage = resp.DetectedLanguage
	}
	return nil
}

// fillSummary produces the search description and the content summary. The
// summary becomes the abstract unless one exists and overwriting is off.
func (p *PostProcessor) fillSummary(ctx context.Context, doc *docmodel.Document, lang string) error {
	input := p.buildContext(doc, p.summaryMaxChunks, true)
	input = p.truncateToBudget(input)

	var resp summaryResponse
	err := StructuredResponse(ctx, p.model, SystemPrompt(PurposeSummary, lang), input, nil, 0.4, 1000, &resp)
	if err != nil {
		return err
	}
	meta := doc.MetaInfo
	if resp.SearchDescription != "" {
		meta.SearchDescription = resp.SearchDescription
	}
	if resp.ContentSummary != "" && (meta.Abstract == "" || p.overwriteAbstract) {
		meta.Abstract = resp.ContentSummary
	}
	return nil
}

// buildContext assembles the prompt input: filename, known title, extra
// metadata, then up to maxTextChunks text chunks and, when includeVisual is
// set, every visual page description.
func (p *PostProcessor) buildContext(doc *docmodel.Document, maxTextChunks int, includeVisual bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n", doc.MetaInfo.FileFeatures.Filename)
	if doc.MetaInfo.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", doc.MetaInfo.Title)
	}
	if len(doc.MetaInfo.ExtraMetainfo) > 0 {
		b.WriteString("Extra metadata:\n")
		for key, value := range doc.MetaInfo.ExtraMetainfo {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}
	b.WriteString("Document content:\n")
	textSeen := 0
	for _, chunk := range doc.Chunks {
		switch chunk.Type {
		case docmodel.ChunkText:
			if textSeen < maxTextChunks {
				b.WriteString(chunk.Text + "\n")
				textSeen++
			}
		case docmodel.ChunkVisualPage:
			if includeVisual {
				b.WriteString(chunk.Text + "\n")
			}
		}
	}
	return b.String()
}

// truncateToBudget trims the input to roughly 95% of the model's token
// budget when the rough count exceeds it.
func (p *PostProcessor) truncateToBudget(input string) string {
	budget := p.model.MaxInputTokens()
	tokens := utils.CountTokensRough(input)
	if tokens <= budget {
		return input
	}
	p.logger.WithFields(logrus.Fields{
		"tokens": tokens,
		"budget": budget,
	}).Warn("LLM input too long, truncating")
	end := int(0.95 * float64(len(input)) * float64(budget) / float64(tokens))
	if end > len(input) {
		end = len(input)
	}
	return input[:end]
}
