package chunker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
)

// Length norms for the standard chunker. Soft bounds steer the splitter's
// target size; hard bounds are the limits the output must respect.
const (
	SoftMinLen = 700
	SoftMaxLen = 1200
	HardMinLen = 400
	HardMaxLen = 1600

	MinChunkLen        = 50
	SpellcheckCutoff   = 0.5
	chunkJoinSeparator = " "
)

// StandardChunker regularizes the lengths of a document's text chunks:
// oversized chunks are split along sentence boundaries, undersized neighbors
// merged, low-quality chunks filtered, and the survivors optionally cleaned.
// Locked chunks and non-text chunks pass through untouched.
type StandardChunker struct {
	speller   *Speller
	cleanText bool
	logger    *logrus.Logger
	tracer    trace.Tracer
}

// NewStandardChunker builds the chunker stage. speller may be nil, which
// disables the dictionary filter (every language passes).
func NewStandardChunker(speller *Speller, cleanText bool, logger *logrus.Logger) *StandardChunker {
	if speller == nil {
		speller = NewSpeller()
	}
	return &StandardChunker{
		speller:   speller,
		cleanText: cleanText,
		logger:    logger,
		tracer:    otel.Tracer("pdferret.chunker.standard"),
	}
}

func (c *StandardChunker) Name() string            { return "standard_chunker" }
func (c *StandardChunker) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (c *StandardChunker) Mode() executor.Mode     { return executor.ModeSerial }

// ProcessSingle runs the four passes over the document's chunk list. A
// document with no chunks is returned unchanged.
func (c *StandardChunker) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	_, span := c.tracer.Start(ctx, "chunker.process")
	defer span.End()
	span.SetAttributes(attribute.Int("chunks.in", len(doc.Chunks)))

	if len(doc.Chunks) == 0 {
		return doc, nil
	}
	lang := doc.MetaInfo.Language
	if lang == "" {
		lang = "en"
	}

	var workable []*docmodel.Chunk
	var passthrough []*docmodel.Chunk
	for _, ch := range doc.Chunks {
		if ch.Locked || ch.Type != docmodel.ChunkText {
			passthrough = append(passthrough, ch)
			continue
		}
		workable = append(workable, ch)
	}

	split := c.splitOversized(workable, lang)
	kept := c.filterQuality(split, lang)
	merged := c.mergeUndersized(kept)
	if c.cleanText {
		for _, ch := range merged {
			ch.Text = CleanText(ch.Text)
		}
	}

	doc.Chunks = append(merged, passthrough...)
	span.SetAttributes(attribute.Int("chunks.out", len(doc.Chunks)))
	return doc, nil
}

// splitOversized is the length-regularizing pass: any chunk beyond the soft
// maximum is sentence-tokenized and partitioned into balanced sublists.
func (c *StandardChunker) splitOversized(chunks []*docmodel.Chunk, lang string) []*docmodel.Chunk {
	var out []*docmodel.Chunk
	for _, ch := range chunks {
		if len(ch.Text) <= SoftMaxLen {
			out = append(out, ch)
			continue
		}
		out = append(out, c.splitChunk(ch, lang)...)
	}
	return out
}

func (c *StandardChunker) splitChunk(ch *docmodel.Chunk, lang string) []*docmodel.Chunk {
	sentences := SplitSentences(ch.Text, lang, SoftMaxLen)
	if len(sentences) <= 1 {
		return []*docmodel.Chunk{ch}
	}
	lengths := make([]int, len(sentences))
	total := 0
	for i, s := range sentences {
		lengths[i] = len(s)
		total += len(s)
	}

	kmin := ceilDiv(total, SoftMaxLen)
	kmax := ceilDiv(total, SoftMinLen)
	if kmax < kmin {
		kmax = kmin
	}

	var cuts []int
	for k := kmin; ; k++ {
		cuts = balancedPartition(lengths, k)
		if maxInt(partitionTotals(lengths, cuts)) <= HardMaxLen {
			break
		}
		if k >= kmax && k >= len(sentences) {
			break
		}
	}

	parts := make([]*docmodel.Chunk, 0, len(cuts)-1)
	totals := partitionTotals(lengths, cuts)
	consumed := 0
	for p := 0; p < len(cuts)-1; p++ {
		sub := ch.Clone()
		sub.Text = joinSentences(sentences[cuts[p]:cuts[p+1]])
		sub.Coordinates = sliceBBox(ch.Coordinates, consumed, totals[p], total)
		consumed += totals[p]
		parts = append(parts, sub)
	}
	return parts
}

// sliceBBox distributes the parent box vertically in proportion to the
// character counts, assuming a vertical column layout. The y-axis points up,
// so the first slice takes the top of the box.
func sliceBBox(box *docmodel.BBox, before, length, total int) *docmodel.BBox {
	if box == nil || total == 0 {
		return nil
	}
	height := box.YMax - box.YMin
	top := box.YMax - height*float64(before)/float64(total)
	bottom := box.YMax - height*float64(before+length)/float64(total)
	return &docmodel.BBox{XMin: box.XMin, YMin: bottom, XMax: box.XMax, YMax: top}
}

// filterQuality drops chunks below the minimum length or the dictionary
// score cutoff.
func (c *StandardChunker) filterQuality(chunks []*docmodel.Chunk, lang string) []*docmodel.Chunk {
	var out []*docmodel.Chunk
	for _, ch := range chunks {
		if len(ch.Text) < MinChunkLen {
			continue
		}
		if score := c.speller.Score(ch.Text, lang); score < SpellcheckCutoff {
			c.logger.WithFields(logrus.Fields{
				"score": score,
				"lang":  lang,
			}).Debug("dropping chunk below spellcheck cutoff")
			continue
		}
		out = append(out, ch)
	}
	return out
}

// mergeUndersized greedily combines adjacent chunks while both sides are
// below the soft minimum and the combination stays within the hard maximum.
func (c *StandardChunker) mergeUndersized(chunks []*docmodel.Chunk) []*docmodel.Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	out := append([]*docmodel.Chunk(nil), chunks...)
	for {
		merged := false
		for i := 0; i+1 < len(out); i++ {
			left, right := out[i], out[i+1]
			if len(left.Text) >= SoftMinLen || len(right.Text) >= SoftMinLen {
				continue
			}
			if len(left.Text)+len(chunkJoinSeparator)+len(right.Text) > HardMaxLen {
				continue
			}
			out[i] = combineChunks(left, right)
			out = append(out[:i+1], out[i+2:]...)
			merged = true
			break
		}
		if !merged {
			return out
		}
	}
}

func combineChunks(left, right *docmodel.Chunk) *docmodel.Chunk {
	merged := left.Clone()
	merged.Text = left.Text + chunkJoinSeparator + right.Text
	merged.Suffix = right.Suffix
	samePage := left.Page != nil && right.Page != nil && *left.Page == *right.Page
	if samePage && left.Coordinates != nil && right.Coordinates != nil {
		union := left.Coordinates.Union(*right.Coordinates)
		merged.Coordinates = &union
	} else if !samePage {
		merged.Coordinates = nil
		if left.Page == nil || right.Page == nil || *left.Page != *right.Page {
			merged.Page = nil
		}
	}
	return merged
}

func joinSentences(sentences []string) string {
	out := ""
	for i, s := range sentences {
		if i > 0 {
			out += chunkJoinSeparator
		}
		out += s
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func maxInt(xs []int) int {
	best := 0
	for _, x := range xs {
		if x > best {
			best = x
		}
	}
	return best
}
