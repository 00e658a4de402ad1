package extract

import (
	"context"

	"github.com/pdferret/pdferret/pkg/docmodel"
)

// ImageSize is an embedded image's dimensions relative to its page mediabox.
type ImageSize struct {
	Height float64
	Width  float64
}

// PDFInspector is the capability boundary to a PDF parsing backend. The
// pipeline stages only consume these observations; how they are produced
// (native library, subprocess) is the implementation's business.
type PDFInspector interface {
	// PageCount returns the number of pages.
	PageCount(ref *docmodel.FileRef) (int, error)

	// ImageSizes lists every XObject image, sized relative to its page.
	ImageSizes(ref *docmodel.FileRef) ([]ImageSize, error)

	// ProbeText extracts the text of the first maxPages pages.
	ProbeText(ref *docmodel.FileRef, maxPages int) (string, error)

	// Truncate writes a copy limited to maxPages and returns its ref.
	Truncate(ref *docmodel.FileRef, maxPages int) (*docmodel.FileRef, error)
}

// OCRBackend re-renders a PDF with a text layer.
type OCRBackend interface {
	// OCR runs recognition over the referenced file and returns a ref to
	// the OCRed output.
	OCR(ctx context.Context, ref *docmodel.FileRef) (*docmodel.FileRef, error)
}

// PageRasterizer renders PDF pages to images.
type PageRasterizer interface {
	// RenderPages rasterizes up to maxPages leading pages at the given
	// DPI, returning one encoded image per page.
	RenderPages(ctx context.Context, ref *docmodel.FileRef, maxPages, dpi int) ([][]byte, error)
}

// MarkdownConverter turns a document (or HTML fragment) into markdown.
type MarkdownConverter interface {
	// ConvertFile converts a file to markdown, extracting embedded media
	// into mediaDir when non-empty.
	ConvertFile(ctx context.Context, path, mediaDir string) (string, error)

	// ConvertHTML converts an HTML fragment to markdown.
	ConvertHTML(ctx context.Context, html string) (string, error)
}
