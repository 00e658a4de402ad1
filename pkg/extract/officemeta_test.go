package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdferret/pdferret/pkg/docmodel"
)

func makeDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestOfficeMetaExtractor(t *testing.T) {
	docx := makeDocx(t, map[string]string{
		"docProps/core.xml": `<cp:coreProperties xmlns:cp="http://example.com/cp">` +
			`<dc:title xmlns:dc="http://purl.org/dc">Quarterly Planning</dc:title>` +
			`<cp:lastModifiedBy>Jane Doe</cp:lastModifiedBy></cp:coreProperties>`,
		"word/document.xml": `<document/>`,
	})

	o := NewOfficeMetaExtractor(scanTestLogger())
	doc := docmodel.NewDocument("plan.docx", docmodel.BytesRef(docx), "en")

	out, err := o.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	result := out.(*docmodel.Document)

	stored := result.MetaInfo.ExtraMetainfo["office_metainfo"]
	assert.Contains(t, stored, "Quarterly Planning")
	assert.Contains(t, stored, "Jane Doe")
	assert.NotContains(t, stored, "word/document")
}

func TestOfficeMetaExtractorNotAZip(t *testing.T) {
	o := NewOfficeMetaExtractor(scanTestLogger())
	doc := docmodel.NewDocument("legacy.doc", docmodel.BytesRef([]byte("not a zip")), "en")

	out, err := o.ProcessSingle(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, out.(*docmodel.Document).MetaInfo.ExtraMetainfo["office_metainfo"])
}
