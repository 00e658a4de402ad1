package extract

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/utils"
)

// ScannedPDFDetector flags documents whose pages are effectively images and
// routes textless ones through OCR. The heuristic: one image per page, the
// majority of images at least mediabox-sized, and low size variance
// (median absolute deviation at most 0.1).
//
// Mixed scanned+native documents are known to misclassify under these
// absolute thresholds; the behavior is kept deliberately.
type ScannedPDFDetector struct {
	inspector    PDFInspector
	ocr          OCRBackend
	maxPages     int
	textProbeMin int
	logger       *logrus.Logger
}

// NewScannedPDFDetector builds the detector stage. textProbeMin is the
// character count under which the first three pages count as textless
// (empirical; configurable).
func NewScannedPDFDetector(inspector PDFInspector, ocr OCRBackend, maxPages, textProbeMin int, logger *logrus.Logger) *ScannedPDFDetector {
	if textProbeMin <= 0 {
		textProbeMin = 50
	}
	return &ScannedPDFDetector{
		inspector:    inspector,
		ocr:          ocr,
		maxPages:     maxPages,
		textProbeMin: textProbeMin,
		logger:       logger,
	}
}

func (d *ScannedPDFDetector) Name() string            { return "scanned_pdf_detector" }
func (d *ScannedPDFDetector) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (d *ScannedPDFDetector) Mode() executor.Mode     { return executor.ModeProcess }

func (d *ScannedPDFDetector) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	ref := doc.MetaInfo.FileFeatures.File

	pages, err := d.inspector.PageCount(ref)
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, fmt.Errorf("unreadable pdf: %w", err))
	}
	doc.MetaInfo.FileFeatures.Pages = pages

	sizes, err := d.inspector.ImageSizes(ref)
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, fmt.Errorf("failed to list images: %w", err))
	}
	doc.MetaInfo.FileFeatures.IsScanned = isScanned(pages, sizes)

	probePages := 3
	if probePages > pages {
		probePages = pages
	}
	text, err := d.inspector.ProbeText(ref, probePages)
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, fmt.Errorf("text probe failed: %w", err))
	}
	if len(text) >= d.textProbeMin {
		if lang := utils.DetectLanguage(text, ""); lang != "" {
			doc.MetaInfo.DetectedLanguage = lang
		}
		return doc, nil
	}

	// effectively no text layer: OCR the file and swap the reference
	d.logger.WithField("file", doc.MetaInfo.FileFeatures.Filename).Warn("PDF contains no text, running OCR")
	if d.maxPages > 0 && pages > d.maxPages {
		if ref, err = d.inspector.Truncate(ref, d.maxPages); err != nil {
			return nil, docmodel.WithKind(docmodel.ErrInput, fmt.Errorf("failed to truncate pdf: %w", err))
		}
	}
	ocred, err := d.ocr.OCR(ctx, ref)
	if err != nil {
		return nil, err
	}
	doc.MetaInfo.FileFeatures.File = ocred
	return doc, nil
}

// isScanned applies the image-per-page heuristic.
func isScanned(pages int, sizes []ImageSize) bool {
	if pages == 0 || len(sizes) != pages {
		return false
	}
	atLeastPage := 0
	dims := make([]float64, 0, len(sizes)*2)
	for _, s := range sizes {
		if s.Height >= 1 && s.Width >= 1 {
			atLeastPage++
		}
		dims = append(dims, s.Height, s.Width)
	}
	if atLeastPage*2 < len(sizes) {
		return false
	}
	return medianAbsDeviation(dims) <= 0.1
}

func medianAbsDeviation(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := median(xs)
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = abs(x - m)
	}
	return median(devs)
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
