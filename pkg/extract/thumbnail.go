package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/utils"
)

// LibreOfficeThumbnailer renders a PNG preview of office documents by batch
// converting them with the LibreOffice CLI. LibreOffice is slow to start
// but fast to convert, so the whole batch goes through one invocation.
// Thumbnailing fails silently: a document without a preview is still a
// perfectly good document.
type LibreOfficeThumbnailer struct {
	logger *logrus.Logger
}

// NewLibreOfficeThumbnailer builds the stage.
func NewLibreOfficeThumbnailer(logger *logrus.Logger) *LibreOfficeThumbnailer {
	return &LibreOfficeThumbnailer{logger: logger}
}

func (t *LibreOfficeThumbnailer) Name() string            { return "libreoffice_thumbnailer" }
func (t *LibreOfficeThumbnailer) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (t *LibreOfficeThumbnailer) Mode() executor.Mode     { return executor.ModeSerial }

// ProcessSingle is unused; the work happens batch-wise in ProcessBatch.
func (t *LibreOfficeThumbnailer) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	return item, nil
}

// ProcessBatch converts every file to PNG in one LibreOffice run and
// attaches whatever previews materialized.
func (t *LibreOfficeThumbnailer) ProcessBatch(ctx context.Context, in *executor.Batch) (*executor.Batch, executor.Failures) {
	outDir, err := os.MkdirTemp("", "pdferret-thumbs-")
	if err != nil {
		t.logger.WithError(err).Warn("failed to create thumbnail directory")
		return in, executor.Failures{}
	}
	defer os.RemoveAll(outDir)

	var paths []string
	for _, key := range in.Keys() {
		item, _ := in.Get(key)
		doc := item.(*docmodel.Document)
		if ref := doc.MetaInfo.FileFeatures.File; ref != nil && ref.Path != "" {
			paths = append(paths, ref.Path)
		}
	}
	if len(paths) == 0 {
		return in, executor.Failures{}
	}

	args := append([]string{"--convert-to", "png", "--outdir", outDir}, paths...)
	if _, stderr, code, err := utils.RunCommand(ctx, "libreoffice", args...); err != nil || code != 0 {
		t.logger.WithFields(logrus.Fields{
			"code":   code,
			"stderr": stderr,
		}).Warn("libreoffice thumbnail conversion failed")
		return in, executor.Failures{}
	}

	for _, key := range in.Keys() {
		item, _ := in.Get(key)
		doc := item.(*docmodel.Document)
		ref := doc.MetaInfo.FileFeatures.File
		if ref == nil || ref.Path == "" {
			continue
		}
		thumbPath := filepath.Join(outDir, replaceExt(filepath.Base(ref.Path), ".png"))
		content, err := os.ReadFile(thumbPath)
		if err != nil {
			continue
		}
		doc.MetaInfo.Thumbnail = content
	}
	return in, executor.Failures{}
}

// PDFThumbnailer renders the first page of a PDF as the thumbnail using the
// rasterizer capability. Like the office thumbnailer it never fails the
// batch.
type PDFThumbnailer struct {
	rasterizer PageRasterizer
	logger     *logrus.Logger
}

// NewPDFThumbnailer builds the stage.
func NewPDFThumbnailer(rasterizer PageRasterizer, logger *logrus.Logger) *PDFThumbnailer {
	return &PDFThumbnailer{rasterizer: rasterizer, logger: logger}
}

func (t *PDFThumbnailer) Name() string            { return "pdf_thumbnailer" }
func (t *PDFThumbnailer) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (t *PDFThumbnailer) Mode() executor.Mode     { return executor.ModeSerial }

func (t *PDFThumbnailer) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	images, err := t.rasterizer.RenderPages(ctx, doc.MetaInfo.FileFeatures.File, 1, 72)
	if err != nil {
		t.logger.WithError(err).WithField("file", doc.MetaInfo.FileFeatures.Filename).
			Warn("failed to render pdf thumbnail")
		return doc, nil
	}
	if len(images) > 0 {
		doc.MetaInfo.Thumbnail = images[0]
	}
	return doc, nil
}

func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
