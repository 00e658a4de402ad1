package extract

import (
	"context"
	"fmt"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/utils"
)

// LanguageDetector fills detected_language from the abstract, the title, or
// the first text chunk, whichever is present first.
type LanguageDetector struct{}

func (LanguageDetector) Name() string            { return "language_detector" }
func (LanguageDetector) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (LanguageDetector) Mode() executor.Mode     { return executor.ModeSerial }

func (LanguageDetector) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	sample := doc.MetaInfo.Abstract
	if sample == "" {
		sample = doc.MetaInfo.Title
	}
	if sample == "" {
		if texts := doc.TextChunks(); len(texts) > 0 {
			sample = texts[0].Text
		}
	}
	if sample != "" {
		doc.MetaInfo.DetectedLanguage = utils.DetectLanguage(sample, "en")
	}
	return doc, nil
}
