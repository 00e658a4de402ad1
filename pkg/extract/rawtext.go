package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
)

// RawTextExtractor reads a plain-text file and splits it into line-grouped
// text chunks, dropping empty lines.
type RawTextExtractor struct {
	linesPerChunk int
}

// NewRawTextExtractor builds the stage.
func NewRawTextExtractor(linesPerChunk int) *RawTextExtractor {
	if linesPerChunk <= 0 {
		linesPerChunk = 12
	}
	return &RawTextExtractor{linesPerChunk: linesPerChunk}
}

func (r *RawTextExtractor) Name() string            { return "raw_text_extractor" }
func (r *RawTextExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (r *RawTextExtractor) Mode() executor.Mode     { return executor.ModeThread }

func (r *RawTextExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	raw, err := doc.MetaInfo.FileFeatures.File.Bytes()
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, err)
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	for i := 0; i < len(lines); i += r.linesPerChunk {
		end := i + r.linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		chunk := strings.Join(lines[i:end], "\n")
		if chunk == "" {
			continue
		}
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{Text: chunk, Type: docmodel.ChunkText})
	}
	return doc, nil
}
