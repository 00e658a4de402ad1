package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/llm"
)

type fakeRasterizer struct {
	pages [][]byte
}

func (f *fakeRasterizer) RenderPages(ctx context.Context, ref *docmodel.FileRef, maxPages, dpi int) ([][]byte, error) {
	if maxPages < len(f.pages) {
		return f.pages[:maxPages], nil
	}
	return f.pages, nil
}

type fakeVisionModel struct {
	calls int
}

func (f *fakeVisionModel) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	return &llm.CompletionResponse{Content: fmt.Sprintf("Description of page %d.", f.calls)}, nil
}
func (f *fakeVisionModel) Name() string        { return "fake-vision" }
func (f *fakeVisionModel) MaxInputTokens() int { return 8192 }

func TestVisualPageExtractor(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: [][]byte{
		[]byte("page-1-jpeg"), []byte("page-2-jpeg"), []byte("page-3-jpeg"), []byte("page-4-jpeg"),
	}}
	model := &fakeVisionModel{}
	v := NewVisualPageExtractor(model, rasterizer, 3, 100, true, scanTestLogger())

	doc := docmodel.NewDocument("deck.pdf", docmodel.PathRef("/tmp/deck.pdf"), "en")
	out, err := v.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	result := out.(*docmodel.Document)

	assert.Equal(t, []byte("page-1-jpeg"), result.MetaInfo.Thumbnail)
	assert.Equal(t, 3, model.calls)

	var visual []*docmodel.Chunk
	for _, ch := range result.Chunks {
		if ch.Type == docmodel.ChunkVisualPage {
			visual = append(visual, ch)
		}
	}
	require.Len(t, visual, 3)
	assert.Equal(t, "Description of page 1.", visual[0].Text)
	assert.Equal(t, []byte("page-1-jpeg"), visual[0].NonEmbeddable)
	require.NotNil(t, visual[2].Page)
	assert.Equal(t, 3, *visual[2].Page)
}

func TestVisualPageExtractorNoThumbnailUpdate(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: [][]byte{[]byte("page-1-jpeg")}}
	v := NewVisualPageExtractor(&fakeVisionModel{}, rasterizer, 3, 100, false, scanTestLogger())

	doc := docmodel.NewDocument("deck.pdf", docmodel.PathRef("/tmp/deck.pdf"), "en")
	out, err := v.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	assert.Nil(t, out.(*docmodel.Document).MetaInfo.Thumbnail)
}
