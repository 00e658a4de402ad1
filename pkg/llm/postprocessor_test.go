package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdferret/pdferret/pkg/docmodel"
)

// scriptedModel answers by matching the system prompt against the prompt
// table, the way the real stage drives one model for several purposes.
type scriptedModel struct {
	metadataJSON string
	summaryJSON  string
	tableJSON    string
	budget       int
	lastUser     string
}

func (m *scriptedModel) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	system := req.Messages[0].Content
	m.lastUser = req.Messages[1].Content
	var content string
	switch {
	case strings.Contains(system, "Metadata includes") || strings.Contains(system, "Metadaten"):
		content = m.metadataJSON
	case strings.Contains(system, "table") || strings.Contains(system, "Tabelle"):
		content = m.tableJSON
	default:
		content = m.summaryJSON
	}
	return &CompletionResponse{Content: content}, nil
}

func (m *scriptedModel) Name() string { return "scripted" }
func (m *scriptedModel) MaxInputTokens() int {
	if m.budget == 0 {
		return 32768
	}
	return m.budget
}

func sampleDoc() *docmodel.Document {
	doc := docmodel.NewDocument("minutes.docx", nil, "en")
	doc.Chunks = []*docmodel.Chunk{
		{Text: "The committee met on the fourth of March to discuss the budget.", Type: docmodel.ChunkText},
		{Text: "Attendance was recorded and the minutes of the last meeting approved.", Type: docmodel.ChunkText},
		{Text: "A page showing a bar chart of quarterly spending.", Type: docmodel.ChunkVisualPage},
	}
	return doc
}

func TestPostProcessorFillsMetadataAndSummary(t *testing.T) {
	model := &scriptedModel{
		metadataJSON: `{"title": "Committee Budget Meeting Minutes From March", "document_type": "minutes",
			"people": ["Jane Doe"], "mentioned_date": "2024-03-04", "detected_language": "en"}`,
		summaryJSON: `{"content_summary": "Minutes of a budget committee meeting.",
			"search_description": "Committee meeting minutes about budget decisions."}`,
	}
	p := NewPostProcessor(model, testLogger())

	out, err := p.ProcessSingle(context.Background(), sampleDoc())
	require.NoError(t, err)
	meta := out.(*docmodel.Document).MetaInfo

	assert.Equal(t, "Committee Budget Meeting Minutes From March", meta.Title)
	assert.Equal(t, "minutes", meta.DocumentType)
	assert.Equal(t, []string{"Jane Doe"}, meta.Authors)
	assert.Equal(t, "2024-03-04", meta.MentionedDate)
	assert.Equal(t, "en", meta.DetectedLanguage)
	assert.Equal(t, "Minutes of a budget committee meeting.", meta.Abstract)
	assert.Equal(t, "Committee meeting minutes about budget decisions.", meta.SearchDescription)
}

func TestPostProcessorKeepsExistingAbstract(t *testing.T) {
	model := &scriptedModel{
		metadataJSON: `{"title": "T"}`,
		summaryJSON:  `{"content_summary": "generated", "search_description": "d"}`,
	}
	p := NewPostProcessor(model, testLogger())

	doc := sampleDoc()
	doc.MetaInfo.Abstract = "original abstract"
	out, err := p.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "original abstract", out.(*docmodel.Document).MetaInfo.Abstract)
}

func TestPostProcessorOverwritesAbstractWhenAsked(t *testing.T) {
	model := &scriptedModel{
		metadataJSON: `{"title": "T"}`,
		summaryJSON:  `{"content_summary": "generated", "search_description": "d"}`,
	}
	p := NewPostProcessor(model, testLogger(), WithOverwriteAbstract())

	doc := sampleDoc()
	doc.MetaInfo.Abstract = "original abstract"
	out, err := p.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "generated", out.(*docmodel.Document).MetaInfo.Abstract)
}

func TestPostProcessorDescribesTables(t *testing.T) {
	model := &scriptedModel{
		metadataJSON: `{"title": "T"}`,
		summaryJSON:  `{"content_summary": "s", "search_description": "d"}`,
		tableJSON:    `{"description": "Revenue by quarter."}`,
	}
	p := NewPostProcessor(model, testLogger(), WithTableDescription())

	doc := sampleDoc()
	for i := 0; i < 7; i++ {
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{
			NonEmbeddable: []byte("<table><tr><td>1</td></tr></table>"),
			Type:          docmodel.ChunkTable,
			Locked:        true,
		})
	}
	out, err := p.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)

	described := 0
	for _, ch := range out.(*docmodel.Document).Chunks {
		if ch.Type == docmodel.ChunkTable && ch.Text == "Revenue by quarter." {
			described++
		}
	}
	assert.Equal(t, maxTableDescriptions, described)
}

func TestPostProcessorKeepsExistingAuthors(t *testing.T) {
	model := &scriptedModel{
		metadataJSON: `{"title": "T", "people": ["Model Person"]}`,
		summaryJSON:  `{"content_summary": "s", "search_description": "d"}`,
	}
	p := NewPostProcessor(model, testLogger())

	doc := sampleDoc()
	doc.MetaInfo.Authors = []string{"Known Author"}
	out, err := p.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Known Author"}, out.(*docmodel.Document).MetaInfo.Authors)
}

func TestPostProcessorTruncatesLongInput(t *testing.T) {
	model := &scriptedModel{
		metadataJSON: `{"title": "T"}`,
		summaryJSON:  `{"content_summary": "s", "search_description": "d"}`,
		budget:       20,
	}
	p := NewPostProcessor(model, testLogger())

	doc := sampleDoc()
	doc.Chunks[0].Text = strings.Repeat("word ", 500)
	_, err := p.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	assert.Less(t, len(model.lastUser), len(doc.Chunks[0].Text))
}

func TestPostProcessorBuildsContextFromVisualPages(t *testing.T) {
	model := &scriptedModel{
		metadataJSON: `{"title": "T"}`,
		summaryJSON:  `{"content_summary": "s", "search_description": "d"}`,
	}
	p := NewPostProcessor(model, testLogger())

	_, err := p.ProcessSingle(context.Background(), sampleDoc())
	require.NoError(t, err)
	assert.Contains(t, model.lastUser, "bar chart of quarterly spending")
}
