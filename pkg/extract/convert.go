package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/utils"
)

// LibreOfficeConverter batch-converts files to a target format via the
// LibreOffice CLI and rewrites each document's file reference to the
// converted output. A file the converter did not produce becomes a
// per-item failure; the rest of the batch continues.
type LibreOfficeConverter struct {
	targetFormat string
	logger       *logrus.Logger
}

// NewLibreOfficeConverter builds the stage for the given target format
// ("odt" unless told otherwise).
func NewLibreOfficeConverter(targetFormat string, logger *logrus.Logger) *LibreOfficeConverter {
	if targetFormat == "" {
		targetFormat = "odt"
	}
	return &LibreOfficeConverter{targetFormat: targetFormat, logger: logger}
}

func (c *LibreOfficeConverter) Name() string            { return "libreoffice_converter" }
func (c *LibreOfficeConverter) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (c *LibreOfficeConverter) Mode() executor.Mode     { return executor.ModeSerial }

// ProcessSingle is unused; the work happens batch-wise in ProcessBatch.
func (c *LibreOfficeConverter) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	return item, nil
}

// ProcessBatch converts the whole batch in one LibreOffice run.
func (c *LibreOfficeConverter) ProcessBatch(ctx context.Context, in *executor.Batch) (*executor.Batch, executor.Failures) {
	out := executor.NewBatch()
	failures := executor.Failures{}

	outDir, err := os.MkdirTemp("", "pdferret-convert-")
	if err != nil {
		for _, key := range in.Keys() {
			failures[key] = docmodel.NewProcessingError(docmodel.ErrExternal, key, err)
		}
		return out, failures
	}
	defer os.RemoveAll(outDir)

	var paths []string
	for _, key := range in.Keys() {
		item, _ := in.Get(key)
		doc := item.(*docmodel.Document)
		ref := doc.MetaInfo.FileFeatures.File
		if ref == nil || ref.Path == "" {
			failures[key] = docmodel.NewProcessingError(docmodel.ErrInput, key,
				fmt.Errorf("conversion requires a path-backed file reference"))
			continue
		}
		paths = append(paths, ref.Path)
	}

	args := append([]string{"--convert-to", c.targetFormat, "--outdir", outDir}, paths...)
	_, stderr, code, err := utils.RunCommand(ctx, "libreoffice", args...)
	if err != nil || code != 0 {
		convErr := fmt.Errorf("libreoffice exited with %d: %s", code, stderr)
		if err != nil {
			convErr = err
		}
		for _, key := range in.Keys() {
			if _, failed := failures[key]; !failed {
				failures[key] = docmodel.NewProcessingError(docmodel.ErrExternal, key, convErr)
			}
		}
		return out, failures
	}

	for _, key := range in.Keys() {
		if _, failed := failures[key]; failed {
			continue
		}
		item, _ := in.Get(key)
		doc := item.(*docmodel.Document)
		ref := doc.MetaInfo.FileFeatures.File

		converted := filepath.Join(outDir, replaceExt(filepath.Base(ref.Path), "."+c.targetFormat))
		newPath := filepath.Join(filepath.Dir(ref.Path), filepath.Base(converted))
		if err := copyFile(converted, newPath); err != nil {
			failures[key] = docmodel.NewProcessingError(docmodel.ErrExternal,
				doc.MetaInfo.FileFeatures.Filename, fmt.Errorf("conversion produced no output: %w", err))
			continue
		}
		doc.MetaInfo.FileFeatures.File = docmodel.PathRef(newPath)
		out.Put(key, doc)
	}

	c.logger.WithFields(logrus.Fields{
		"format":    c.targetFormat,
		"converted": out.Len(),
		"failed":    len(failures),
	}).Debug("libreoffice conversion finished")
	return out, failures
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
