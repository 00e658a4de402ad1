package extract

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdferret/pdferret/pkg/docmodel"
)

type fakeInspector struct {
	pages     int
	sizes     []ImageSize
	probeText string
	truncated bool
}

func (f *fakeInspector) PageCount(ref *docmodel.FileRef) (int, error) { return f.pages, nil }
func (f *fakeInspector) ImageSizes(ref *docmodel.FileRef) ([]ImageSize, error) {
	return f.sizes, nil
}
func (f *fakeInspector) ProbeText(ref *docmodel.FileRef, maxPages int) (string, error) {
	return f.probeText, nil
}
func (f *fakeInspector) Truncate(ref *docmodel.FileRef, maxPages int) (*docmodel.FileRef, error) {
	f.truncated = true
	return ref, nil
}

type fakeOCR struct {
	called bool
	out    *docmodel.FileRef
}

func (f *fakeOCR) OCR(ctx context.Context, ref *docmodel.FileRef) (*docmodel.FileRef, error) {
	f.called = true
	return f.out, nil
}

func scanTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestIsScanned(t *testing.T) {
	fullPage := func(n int) []ImageSize {
		sizes := make([]ImageSize, n)
		for i := range sizes {
			sizes[i] = ImageSize{Height: 1.01, Width: 1.0}
		}
		return sizes
	}

	t.Run("UniformFullPageImages", func(t *testing.T) {
		assert.True(t, isScanned(3, fullPage(3)))
	})

	t.Run("ImageCountMismatch", func(t *testing.T) {
		assert.False(t, isScanned(3, fullPage(2)))
	})

	t.Run("SmallImages", func(t *testing.T) {
		sizes := []ImageSize{{0.2, 0.3}, {0.1, 0.2}, {0.3, 0.1}}
		assert.False(t, isScanned(3, sizes))
	})

	t.Run("HighVariance", func(t *testing.T) {
		sizes := []ImageSize{{1.0, 1.0}, {2.5, 2.5}, {1.0, 4.0}}
		assert.False(t, isScanned(3, sizes))
	})

	t.Run("NoPages", func(t *testing.T) {
		assert.False(t, isScanned(0, nil))
	})
}

func TestScannedPDFDetector(t *testing.T) {
	longProbe := "This page clearly contains far more than fifty characters of extracted text content."

	t.Run("NativeTextSkipsOCR", func(t *testing.T) {
		inspector := &fakeInspector{pages: 5, probeText: longProbe}
		ocr := &fakeOCR{}
		d := NewScannedPDFDetector(inspector, ocr, 30, 50, scanTestLogger())

		doc := docmodel.NewDocument("native.pdf", docmodel.PathRef("/tmp/native.pdf"), "en")
		out, err := d.ProcessSingle(context.Background(), doc)
		require.NoError(t, err)

		result := out.(*docmodel.Document)
		assert.Equal(t, 5, result.MetaInfo.FileFeatures.Pages)
		assert.False(t, result.MetaInfo.FileFeatures.IsScanned)
		assert.False(t, ocr.called)
		assert.Equal(t, "en", result.MetaInfo.DetectedLanguage)
	})

	t.Run("TextlessTriggersOCR", func(t *testing.T) {
		sizes := make([]ImageSize, 4)
		for i := range sizes {
			sizes[i] = ImageSize{Height: 1.1, Width: 1.05}
		}
		inspector := &fakeInspector{pages: 4, sizes: sizes, probeText: "x"}
		ocred := docmodel.PathRef("/tmp/scan.pdf.ocr.pdf")
		ocr := &fakeOCR{out: ocred}
		d := NewScannedPDFDetector(inspector, ocr, 30, 50, scanTestLogger())

		doc := docmodel.NewDocument("scan.pdf", docmodel.PathRef("/tmp/scan.pdf"), "en")
		out, err := d.ProcessSingle(context.Background(), doc)
		require.NoError(t, err)

		result := out.(*docmodel.Document)
		assert.True(t, result.MetaInfo.FileFeatures.IsScanned)
		assert.True(t, ocr.called)
		assert.Same(t, ocred, result.MetaInfo.FileFeatures.File)
		assert.False(t, inspector.truncated)
	})

	t.Run("LongDocumentTruncatedBeforeOCR", func(t *testing.T) {
		inspector := &fakeInspector{pages: 80, probeText: ""}
		ocr := &fakeOCR{out: docmodel.PathRef("/tmp/long.pdf.ocr.pdf")}
		d := NewScannedPDFDetector(inspector, ocr, 30, 50, scanTestLogger())

		doc := docmodel.NewDocument("long.pdf", docmodel.PathRef("/tmp/long.pdf"), "en")
		_, err := d.ProcessSingle(context.Background(), doc)
		require.NoError(t, err)
		assert.True(t, inspector.truncated)
		assert.True(t, ocr.called)
	})
}

func TestMedianAbsDeviation(t *testing.T) {
	assert.Equal(t, 0.0, medianAbsDeviation([]float64{1, 1, 1, 1}))
	assert.InDelta(t, 1.0, medianAbsDeviation([]float64{1, 2, 3, 4, 5}), 1e-9)
	assert.Equal(t, 0.0, medianAbsDeviation(nil))
}
