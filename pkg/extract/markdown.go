package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
)

// MarkdownExtractor converts office documents to markdown through the
// converter capability, splitting the result into line-grouped text chunks.
// Embedded media files become locked figure chunks.
type MarkdownExtractor struct {
	converter     MarkdownConverter
	linesPerChunk int
	logger        *logrus.Logger
}

// NewMarkdownExtractor builds the stage.
func NewMarkdownExtractor(converter MarkdownConverter, linesPerChunk int, logger *logrus.Logger) *MarkdownExtractor {
	if linesPerChunk <= 0 {
		linesPerChunk = 12
	}
	return &MarkdownExtractor{
		converter:     converter,
		linesPerChunk: linesPerChunk,
		logger:        logger,
	}
}

func (m *MarkdownExtractor) Name() string            { return "markdown_extractor" }
func (m *MarkdownExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (m *MarkdownExtractor) Mode() executor.Mode     { return executor.ModeThread }

func (m *MarkdownExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	ref := doc.MetaInfo.FileFeatures.File
	if ref.Path == "" {
		return nil, docmodel.WithKind(docmodel.ErrInput,
			fmt.Errorf("markdown conversion requires a path-backed file reference"))
	}

	mediaDir, err := os.MkdirTemp("", "pdferret-media-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(mediaDir)

	markdown, err := m.converter.ConvertFile(ctx, ref.Path, mediaDir)
	if err != nil {
		return nil, err
	}
	for _, text := range SplitTextByLines(markdown, m.linesPerChunk) {
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{Text: text, Type: docmodel.ChunkText})
	}

	var mediaFiles []string
	_ = filepath.WalkDir(mediaDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		mediaFiles = append(mediaFiles, path)
		return nil
	})
	for _, media := range mediaFiles {
		content, err := os.ReadFile(media)
		if err != nil {
			m.logger.WithError(err).WithField("media", media).Warn("failed to read extracted media")
			continue
		}
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{
			NonEmbeddable: content,
			Type:          docmodel.ChunkFigure,
			Locked:        true,
		})
	}
	return doc, nil
}
