package extract

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/llm"
)

// VisualPageExtractor rasterizes the first pages of a document and has a
// vision model describe each one. The description becomes a visual-page
// chunk carrying the page image; the first page image doubles as the
// thumbnail unless suppressed.
type VisualPageExtractor struct {
	model           llm.Model
	rasterizer      PageRasterizer
	maxPages        int
	dpi             int
	updateThumbnail bool
	logger          *logrus.Logger
}

// NewVisualPageExtractor builds the stage.
func NewVisualPageExtractor(model llm.Model, rasterizer PageRasterizer, maxPages, dpi int, updateThumbnail bool, logger *logrus.Logger) *VisualPageExtractor {
	if maxPages <= 0 {
		maxPages = 3
	}
	if dpi <= 0 {
		dpi = 100
	}
	return &VisualPageExtractor{
		model:           model,
		rasterizer:      rasterizer,
		maxPages:        maxPages,
		dpi:             dpi,
		updateThumbnail: updateThumbnail,
		logger:          logger,
	}
}

func (v *VisualPageExtractor) Name() string            { return "visual_page_extractor" }
func (v *VisualPageExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (v *VisualPageExtractor) Mode() executor.Mode     { return executor.ModeThread }

func (v *VisualPageExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	images, err := v.rasterizer.RenderPages(ctx, doc.MetaInfo.FileFeatures.File, v.maxPages, v.dpi)
	if err != nil {
		return nil, err
	}
	if v.updateThumbnail && len(images) > 0 {
		doc.MetaInfo.Thumbnail = images[0]
	}

	lang := llm.PromptLanguage(doc.MetaInfo.Language)
	prompt := llm.SystemPrompt(llm.PurposeVisual, lang)
	for i, img := range images {
		resp, err := v.model.Complete(ctx, &llm.CompletionRequest{
			Model: v.model.Name(),
			Messages: []llm.Message{
				{Role: "user", Content: prompt, Image: img},
			},
			Temperature: 0.2,
			MaxTokens:   1000,
		})
		if err != nil {
			v.logger.WithError(err).WithField("page", i+1).Warn("vision model call failed")
			continue
		}
		if resp.Content == "" {
			continue
		}
		page := i + 1
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{
			Page:          &page,
			Text:          resp.Content,
			NonEmbeddable: img,
			Type:          docmodel.ChunkVisualPage,
		})
	}
	return doc, nil
}
