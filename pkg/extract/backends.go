package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/utils"
)

// HTTPOCRBackend sends a PDF to an OCR service and stores the result next
// to the input.
type HTTPOCRBackend struct {
	url        string
	httpClient *http.Client
}

// NewHTTPOCRBackend builds the backend for the given OCR service URL.
func NewHTTPOCRBackend(url string, timeout time.Duration) *HTTPOCRBackend {
	return &HTTPOCRBackend{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// OCR posts the file and writes the recognized output to a sibling path.
func (b *HTTPOCRBackend) OCR(ctx context.Context, ref *docmodel.FileRef) (*docmodel.FileRef, error) {
	data, err := ref.Bytes()
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/pdf")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, docmodel.Externalf("ocr request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, docmodel.Externalf("ocr service returned status %d", resp.StatusCode)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, docmodel.Externalf("failed to read ocr output: %v", err)
	}

	if ref.Path != "" {
		ocrPath := ref.Path + ".ocr.pdf"
		if err := os.WriteFile(ocrPath, out, 0o644); err != nil {
			return nil, err
		}
		return docmodel.PathRef(ocrPath), nil
	}
	return docmodel.BytesRef(out), nil
}

// PopplerRasterizer renders PDF pages with the pdftoppm CLI.
type PopplerRasterizer struct{}

// RenderPages rasterizes the first maxPages pages to JPEG.
func (PopplerRasterizer) RenderPages(ctx context.Context, ref *docmodel.FileRef, maxPages, dpi int) ([][]byte, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("rasterizer requires a path-backed file reference")
	}
	outDir, err := os.MkdirTemp("", "pdferret-raster-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	prefix := filepath.Join(outDir, "page")
	_, stderr, code, err := utils.RunCommand(ctx, "pdftoppm",
		"-jpeg", "-r", strconv.Itoa(dpi), "-f", "1", "-l", strconv.Itoa(maxPages),
		ref.Path, prefix)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, docmodel.Externalf("pdftoppm exited with %d: %s", code, stderr)
	}

	matches, err := filepath.Glob(prefix + "*.jpg")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	var pages [][]byte
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		pages = append(pages, data)
	}
	if len(pages) == 0 {
		return nil, docmodel.Externalf("pdftoppm produced no pages")
	}
	return pages, nil
}

// PandocConverter shells out to pandoc for markdown conversion.
type PandocConverter struct {
	// Columns bounds the line width of the produced markdown.
	Columns int
}

// ConvertFile converts a document file to markdown, extracting embedded
// media into mediaDir when non-empty.
func (p PandocConverter) ConvertFile(ctx context.Context, path, mediaDir string) (string, error) {
	cols := p.Columns
	if cols == 0 {
		cols = 130
	}
	args := []string{"--to=markdown", fmt.Sprintf("--columns=%d", cols)}
	if mediaDir != "" {
		args = append(args, "--extract-media="+mediaDir)
	}
	args = append(args, path)
	stdout, stderr, code, err := utils.RunCommand(ctx, "pandoc", args...)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", docmodel.Externalf("pandoc exited with %d: %s", code, stderr)
	}
	return stdout, nil
}

// ConvertHTML converts an HTML fragment to markdown via stdin-less temp file.
func (p PandocConverter) ConvertHTML(ctx context.Context, html string) (string, error) {
	tmp, err := os.CreateTemp("", "pdferret-html-*.html")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(html); err != nil {
		tmp.Close()
		return "", err
	}
	tmp.Close()

	cols := p.Columns
	if cols == 0 {
		cols = 130
	}
	stdout, stderr, code, err := utils.RunCommand(ctx, "pandoc",
		"--from=html", "--to=markdown", fmt.Sprintf("--columns=%d", cols), tmp.Name())
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", docmodel.Externalf("pandoc exited with %d: %s", code, stderr)
	}
	return stdout, nil
}
