package ferret

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdferret/pdferret/pkg/config"
	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/extract"
	"github.com/pdferret/pdferret/pkg/metrics"
	"github.com/pdferret/pdferret/pkg/pipeline"
)

type markerStage struct {
	failFile string
}

func (s *markerStage) Name() string            { return "marker" }
func (s *markerStage) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (s *markerStage) Mode() executor.Mode     { return executor.ModeSerial }

func (s *markerStage) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc := item.(*docmodel.Document)
	if doc.MetaInfo.FileFeatures.Filename == s.failFile {
		return nil, fmt.Errorf("marker rejects %s", s.failFile)
	}
	doc.Chunks = append(doc.Chunks, &docmodel.Chunk{Text: "marked", Type: docmodel.ChunkText})
	return doc, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func testDispatcher(failFile string) *PDFerret {
	logger := testLogger()
	registry := pipeline.NewRegistry()
	registry.Register("pdf", pipeline.New("pdf", logger, &markerStage{failFile: failFile}))
	registry.Register("txt", pipeline.New("txt", logger,
		extract.NewRawTextExtractor(12),
		&markerStage{failFile: failFile},
	))
	m := metrics.New(prometheus.NewRegistry())
	return New(testConfig(), registry, m, logger)
}

func TestExtractBatchEmpty(t *testing.T) {
	result, err := testDispatcher("").ExtractBatch(context.Background(), nil, "en")
	require.NoError(t, err)
	assert.Empty(t, result.Extracted)
	assert.Empty(t, result.Errors)
}

func TestExtractBatchPreservesOrder(t *testing.T) {
	inputs := []Input{
		{Filename: "c.pdf", Ref: docmodel.BytesRef([]byte("%PDF-1"))},
		{Filename: "a.txt", Ref: docmodel.BytesRef([]byte("line one\nline two"))},
		{Filename: "b.pdf", Ref: docmodel.BytesRef([]byte("%PDF-2"))},
	}
	result, err := testDispatcher("").ExtractBatch(context.Background(), inputs, "en")
	require.NoError(t, err)

	require.Len(t, result.Extracted, 3)
	assert.Equal(t, "c.pdf", result.Extracted[0].MetaInfo.FileFeatures.Filename)
	assert.Equal(t, "a.txt", result.Extracted[1].MetaInfo.FileFeatures.Filename)
	assert.Equal(t, "b.pdf", result.Extracted[2].MetaInfo.FileFeatures.Filename)
	assert.Empty(t, result.Errors)

	// the txt pipeline extracted the raw text before marking
	texts := result.Extracted[1].TextChunks()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0].Text, "line one")
}

func TestExtractBatchUnknownExtension(t *testing.T) {
	inputs := []Input{{Filename: "missing.xyz", Ref: docmodel.BytesRef([]byte("data"))}}
	result, err := testDispatcher("").ExtractBatch(context.Background(), inputs, "en")
	require.NoError(t, err)

	require.Len(t, result.Extracted, 1)
	stub := result.Extracted[0]
	assert.Equal(t, "missing.xyz", stub.MetaInfo.FileFeatures.Filename)
	assert.Empty(t, stub.Chunks)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing.xyz", result.Errors[0].File)
	assert.Equal(t, docmodel.ErrNoPipeline, result.Errors[0].Kind)
}

func TestExtractBatchPartialFailure(t *testing.T) {
	inputs := []Input{
		{Filename: "good.pdf", Ref: docmodel.BytesRef([]byte("%PDF-1"))},
		{Filename: "bad.pdf", Ref: docmodel.BytesRef([]byte("%PDF-2"))},
	}
	result, err := testDispatcher("bad.pdf").ExtractBatch(context.Background(), inputs, "en")
	require.NoError(t, err)

	require.Len(t, result.Extracted, 2)
	assert.NotEmpty(t, result.Extracted[0].Chunks)
	assert.Empty(t, result.Extracted[1].Chunks)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad.pdf", result.Errors[0].File)
}

func TestExtractBatchCountInvariant(t *testing.T) {
	inputs := []Input{
		{Filename: "one.pdf", Ref: docmodel.BytesRef([]byte("%PDF-1"))},
		{Filename: "two.unknown", Ref: docmodel.BytesRef([]byte("x"))},
		{Filename: "three.pdf", Ref: docmodel.BytesRef([]byte("%PDF-3"))},
	}
	result, err := testDispatcher("three.pdf").ExtractBatch(context.Background(), inputs, "en")
	require.NoError(t, err)

	assert.Len(t, result.Extracted, len(inputs))
	assert.Len(t, result.Errors, 2)
	for _, perr := range result.Errors {
		found := false
		for _, doc := range result.Extracted {
			if doc.MetaInfo.FileFeatures.Filename == perr.File {
				found = true
			}
		}
		assert.True(t, found, "error file %s must appear in extracted", perr.File)
	}
}

func TestExtractBatchDuplicateFilenames(t *testing.T) {
	inputs := []Input{
		{Filename: "same.pdf", Ref: docmodel.BytesRef([]byte("%PDF-1"))},
		{Filename: "same.pdf", Ref: docmodel.BytesRef([]byte("%PDF-2"))},
	}
	_, err := testDispatcher("").ExtractBatch(context.Background(), inputs, "en")
	assert.Error(t, err)
}

func TestExtractBatchAppliesPerFileSettings(t *testing.T) {
	inputs := []Input{
		{
			Filename:      "de.pdf",
			Ref:           docmodel.BytesRef([]byte("%PDF-1")),
			Language:      "de",
			ExtraMetainfo: map[string]string{"origin": "upload"},
		},
		{Filename: "default.pdf", Ref: docmodel.BytesRef([]byte("%PDF-2"))},
	}
	result, err := testDispatcher("").ExtractBatch(context.Background(), inputs, "en")
	require.NoError(t, err)

	assert.Equal(t, "de", result.Extracted[0].MetaInfo.Language)
	assert.Equal(t, "upload", result.Extracted[0].MetaInfo.ExtraMetainfo["origin"])
	assert.Equal(t, "en", result.Extracted[1].MetaInfo.Language)
}

func TestExtractBatchIdenticalInputsAgree(t *testing.T) {
	content := []byte("alpha line\nbeta line\ngamma line")
	inputs := []Input{
		{Filename: "one.txt", Ref: docmodel.BytesRef(content)},
		{Filename: "two.txt", Ref: docmodel.BytesRef(content)},
		{Filename: "three.txt", Ref: docmodel.BytesRef(content)},
	}
	result, err := testDispatcher("").ExtractBatch(context.Background(), inputs, "en")
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	texts := func(doc *docmodel.Document) []string {
		var out []string
		for _, ch := range doc.TextChunks() {
			out = append(out, ch.Text)
		}
		return out
	}
	first := texts(result.Extracted[0])
	assert.Equal(t, first, texts(result.Extracted[1]))
	assert.Equal(t, first, texts(result.Extracted[2]))
}
