package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdferret/pdferret/pkg/config"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return Deps{Config: cfg, Logger: testLogger()}
}

func stageNames(p *Pipeline) []string {
	var names []string
	for _, s := range p.Stages() {
		names = append(names, s.Name())
	}
	return names
}

func TestBuildRegistryCoversKnownExtensions(t *testing.T) {
	r := BuildRegistry(testDeps(t))
	for _, ext := range []string{"pdf", "doc", "docx", "odt", "ppt", "pptx", "xls", "xlsx", "ods", "txt"} {
		_, ok := r.Lookup(ext)
		assert.True(t, ok, "extension %s must be routable", ext)
	}
	_, ok := r.Lookup("xyz")
	assert.False(t, ok)
}

func TestBuildRegistryRecipeShapes(t *testing.T) {
	r := BuildRegistry(testDeps(t))

	pdf, _ := r.Lookup("pdf")
	assert.Equal(t, []string{
		"tika_extractor", "visual_page_extractor", "language_detector",
		"llm_postprocessor", "standard_chunker",
	}, stageNames(pdf))

	doc, _ := r.Lookup("doc")
	assert.Equal(t, []string{
		"libreoffice_thumbnailer", "libreoffice_converter", "office_meta_extractor",
		"markdown_extractor", "language_detector", "llm_postprocessor", "simple_chunker",
	}, stageNames(doc))

	xlsx, _ := r.Lookup("xlsx")
	names := stageNames(xlsx)
	assert.NotContains(t, names, "simple_chunker")
	assert.NotContains(t, names, "standard_chunker")
	assert.Contains(t, names, "tika_spreadsheet_extractor")

	txt, _ := r.Lookup("txt")
	assert.Equal(t, []string{
		"libreoffice_thumbnailer", "raw_text_extractor", "language_detector",
		"llm_postprocessor", "simple_chunker",
	}, stageNames(txt))
}

func TestBuildRegistryRoutesGeneralFormats(t *testing.T) {
	r := BuildRegistry(testDeps(t))
	for _, ext := range []string{"html", "md", "rtf", "csv"} {
		p, ok := r.Lookup(ext)
		require.True(t, ok, "extension %s must route to the general pipeline", ext)
		assert.Equal(t, "general", p.Name())
		assert.Contains(t, stageNames(p), "partition_text_extractor")
	}
}

func TestBuildRegistryScientificPDF(t *testing.T) {
	deps := testDeps(t)
	deps.Config.Pipeline.ScientificPDF = true

	r := BuildRegistry(deps)
	pdf, _ := r.Lookup("pdf")
	assert.Equal(t, "pdf_scientific", pdf.Name())
	assert.Contains(t, stageNames(pdf), "scanned_pdf_detector")
	assert.Contains(t, stageNames(pdf), "grobid_text_extractor")
	assert.Contains(t, stageNames(pdf), "standard_chunker")
}
