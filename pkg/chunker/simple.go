package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
)

// SimpleChunker regularizes markdown-origin documents: the text chunks are
// concatenated into a buffer which is re-split into runs of at most
// maxChunkLen characters, with an overlap window copied into the prefix and
// suffix of neighbors. Locked and non-text chunks are preserved in place.
type SimpleChunker struct {
	maxChunkLen int
	overlap     int
	logger      *logrus.Logger
}

// NewSimpleChunker builds the simple chunker. A non-positive maxChunkLen
// falls back to 2000 chars and a negative overlap to 100; an overlap of zero
// disables the overlap window.
func NewSimpleChunker(maxChunkLen, overlap int, logger *logrus.Logger) *SimpleChunker {
	if maxChunkLen <= 0 {
		maxChunkLen = 2000
	}
	if overlap < 0 {
		overlap = 100
	}
	return &SimpleChunker{maxChunkLen: maxChunkLen, overlap: overlap, logger: logger}
}

func (c *SimpleChunker) Name() string            { return "simple_chunker" }
func (c *SimpleChunker) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (c *SimpleChunker) Mode() executor.Mode     { return executor.ModeSerial }

func (c *SimpleChunker) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	if len(doc.Chunks) == 0 {
		return doc, nil
	}

	var out []*docmodel.Chunk
	var buffer strings.Builder
	var template *docmodel.Chunk
	flush := func() {
		if buffer.Len() == 0 {
			return
		}
		out = append(out, c.splitBuffer(buffer.String(), template)...)
		buffer.Reset()
	}

	for _, ch := range doc.Chunks {
		if ch.Locked || ch.Type != docmodel.ChunkText {
			flush()
			out = append(out, ch)
			continue
		}
		if ch.Text == "" {
			continue
		}
		template = ch
		if buffer.Len() > 0 {
			buffer.WriteString(" ")
		}
		buffer.WriteString(ch.Text)
	}
	flush()

	doc.Chunks = out
	return doc, nil
}

// splitBuffer cuts the accumulated text into near-equal segments of at most
// maxChunkLen, copying overlap characters into the neighbor context fields.
func (c *SimpleChunker) splitBuffer(text string, template *docmodel.Chunk) []*docmodel.Chunk {
	base := template
	if base == nil {
		base = &docmodel.Chunk{Type: docmodel.ChunkText}
	}
	if len(text) <= c.maxChunkLen {
		ch := base.Clone()
		ch.Text = text
		ch.Prefix, ch.Suffix = "", ""
		return []*docmodel.Chunk{ch}
	}

	segments := ceilDiv(len(text), c.maxChunkLen)
	var out []*docmodel.Chunk
	for i := 0; i < segments; i++ {
		start := i * len(text) / segments
		end := (i + 1) * len(text) / segments
		ch := base.Clone()
		ch.Text = text[start:end]
		ch.Prefix, ch.Suffix = "", ""
		if i > 0 {
			ch.Prefix = text[maxI(0, start-c.overlap):start]
		}
		if i < segments-1 {
			ch.Suffix = text[end:minI(len(text), end+c.overlap)]
		}
		out = append(out, ch)
	}
	return out
}

func minI(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}
