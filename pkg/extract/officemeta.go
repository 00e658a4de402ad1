package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/utils"
)

// OfficeMetaExtractor pulls the docProps XML parts out of zip-based office
// formats and stores a cleaned serialization in extra_metainfo. A file that
// is not a zip archive passes through untouched; metadata extraction is
// best effort.
type OfficeMetaExtractor struct {
	logger *logrus.Logger
}

// NewOfficeMetaExtractor builds the stage.
func NewOfficeMetaExtractor(logger *logrus.Logger) *OfficeMetaExtractor {
	return &OfficeMetaExtractor{logger: logger}
}

func (o *OfficeMetaExtractor) Name() string            { return "office_meta_extractor" }
func (o *OfficeMetaExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (o *OfficeMetaExtractor) Mode() executor.Mode     { return executor.ModeThread }

func (o *OfficeMetaExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	data, err := doc.MetaInfo.FileFeatures.File.Bytes()
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		o.logger.WithField("file", doc.MetaInfo.FileFeatures.Filename).Error("bad zip file")
		return doc, nil
	}

	var parts []string
	for _, f := range reader.File {
		if !strings.HasPrefix(f.Name, "docProps") || !strings.HasSuffix(f.Name, "xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		_, copyErr := buf.ReadFrom(rc)
		rc.Close()
		if copyErr != nil {
			continue
		}
		cleaned, err := utils.CleanXML(buf.String())
		if err != nil {
			o.logger.WithError(err).WithField("part", f.Name).Debug("skipping malformed docProps part")
			continue
		}
		parts = append(parts, cleaned)
	}
	if len(parts) > 0 {
		doc.MetaInfo.ExtraMetainfo["office_metainfo"] = strings.Join(parts, "\n")
	}
	return doc, nil
}
