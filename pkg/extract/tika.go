package extract

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
)

var doiPattern = regexp.MustCompile(`\b10\.\d{4,9}/[-.;()/:\w]+`)

// Metadata tags probed, in order, for each normalized property.
var tikaPropTags = map[string][]string{
	"authors":  {"dc:creator", "pdf:docinfo:creator"},
	"title":    {"dc:title", "pdf:docinfo:title"},
	"pub_date": {"xmp:CreateDate", "xmpMM:History:When", "xmp:MetadataDate", "dcterms:created", "pdf:docinfo:created"},
}

// TikaExtractor posts a file to a Tika server, converts the returned XHTML
// to markdown line-group chunks, and pulls binary attachments into figure
// chunks. With saveRawMetadata the raw Tika metadata lands in
// extra_metainfo["pdf_metadata"].
type TikaExtractor struct {
	baseURL         string
	ocrStrategy     string
	linesPerChunk   int
	saveRawMetadata bool
	markdown        MarkdownConverter
	httpClient      *http.Client
	logger          *logrus.Logger
}

// NewTikaExtractor builds the stage.
func NewTikaExtractor(baseURL, ocrStrategy string, linesPerChunk int, saveRawMetadata bool, markdown MarkdownConverter, timeout time.Duration, logger *logrus.Logger) *TikaExtractor {
	if linesPerChunk <= 0 {
		linesPerChunk = 15
	}
	return &TikaExtractor{
		baseURL:         strings.TrimRight(baseURL, "/"),
		ocrStrategy:     ocrStrategy,
		linesPerChunk:   linesPerChunk,
		saveRawMetadata: saveRawMetadata,
		markdown:        markdown,
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger,
	}
}

func (t *TikaExtractor) Name() string            { return "tika_extractor" }
func (t *TikaExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (t *TikaExtractor) Mode() executor.Mode     { return executor.ModeThread }

func (t *TikaExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	data, err := doc.MetaInfo.FileFeatures.File.Bytes()
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, err)
	}

	html, err := t.fetchContent(ctx, data)
	if err != nil {
		return nil, err
	}
	meta, err := t.fetchMetadata(ctx, data)
	if err != nil {
		return nil, err
	}
	t.applyMetadata(doc.MetaInfo, meta)

	markdown, err := t.markdown.ConvertHTML(ctx, html)
	if err != nil {
		return nil, err
	}
	for _, text := range SplitTextByLines(markdown, t.linesPerChunk) {
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{Text: text, Type: docmodel.ChunkText})
	}

	attachments, err := t.fetchAttachments(ctx, data)
	if err != nil {
		t.logger.WithError(err).Warn("failed to unpack attachments")
	}
	for name, content := range attachments {
		if !isImageAttachment(name) {
			continue
		}
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{
			NonEmbeddable: content,
			Type:          docmodel.ChunkFigure,
			Locked:        true,
		})
	}
	return doc, nil
}

func (t *TikaExtractor) fetchContent(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")
	if t.ocrStrategy != "" {
		req.Header.Set("X-Tika-PDFocrStrategy", t.ocrStrategy)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", docmodel.Externalf("tika request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", docmodel.Externalf("tika returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", docmodel.Externalf("failed to read tika response: %v", err)
	}
	return string(body), nil
}

func (t *TikaExtractor) fetchMetadata(ctx context.Context, data []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/meta", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, docmodel.Externalf("tika meta request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, docmodel.Externalf("tika meta returned status %d", resp.StatusCode)
	}
	var meta map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, docmodel.Parsef("tika metadata was not valid JSON: %v", err)
	}
	return meta, nil
}

// fetchAttachments unpacks embedded binaries via Tika's unpacker resource.
func (t *TikaExtractor) fetchAttachments(ctx context.Context, data []byte) (map[string][]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/unpack/all", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-tar")
	req.Header.Set("X-Tika-PDFextractInlineImages", "true")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, docmodel.Externalf("tika unpack request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, docmodel.Externalf("tika unpack returned status %d", resp.StatusCode)
	}

	attachments := map[string][]byte{}
	tr := tar.NewReader(resp.Body)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, docmodel.Parsef("malformed unpack archive: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, docmodel.Parsef("failed to read attachment %s: %v", hdr.Name, err)
		}
		attachments[hdr.Name] = content
	}
	return attachments, nil
}

// applyMetadata maps Tika's raw metadata onto the document's metainfo.
func (t *TikaExtractor) applyMetadata(meta *docmodel.MetaInfo, raw map[string]any) {
	if t.saveRawMetadata {
		if encoded, err := json.Marshal(raw); err == nil {
			meta.ExtraMetainfo["pdf_metadata"] = string(encoded)
		}
	}
	if v := firstByTags(raw, tikaPropTags["title"]); v != "" && meta.Title == "" {
		meta.Title = v
	}
	if v := firstByTags(raw, tikaPropTags["pub_date"]); v != "" && meta.PubDate == "" {
		meta.PubDate = v
	}
	if meta.Authors == nil {
		if authors := authorsByTags(raw, tikaPropTags["authors"]); len(authors) > 0 {
			meta.Authors = authors
		}
	}
	if meta.DOI == "" {
		if encoded, err := json.Marshal(raw); err == nil {
			if m := doiPattern.FindString(string(encoded)); m != "" {
				meta.DOI = m
			}
		}
	}
}

func firstByTags(raw map[string]any, tags []string) string {
	for _, tag := range tags {
		switch v := raw[tag].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func authorsByTags(raw map[string]any, tags []string) []string {
	for _, tag := range tags {
		switch v := raw[tag].(type) {
		case string:
			if v != "" {
				return splitAuthors(v)
			}
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func splitAuthors(joined string) []string {
	var out []string
	for _, part := range strings.Split(joined, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// TikaSpreadsheetExtractor routes spreadsheets through Tika and renders
// each sheet's table as a markdown chunk. No figures, no chunker downstream.
type TikaSpreadsheetExtractor struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewTikaSpreadsheetExtractor builds the spreadsheet mode stage.
func NewTikaSpreadsheetExtractor(baseURL string, timeout time.Duration, logger *logrus.Logger) *TikaSpreadsheetExtractor {
	return &TikaSpreadsheetExtractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (t *TikaSpreadsheetExtractor) Name() string            { return "tika_spreadsheet_extractor" }
func (t *TikaSpreadsheetExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (t *TikaSpreadsheetExtractor) Mode() executor.Mode     { return executor.ModeThread }

func (t *TikaSpreadsheetExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	data, err := doc.MetaInfo.FileFeatures.File.Bytes()
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, docmodel.Externalf("tika request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, docmodel.Externalf("tika returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, docmodel.Externalf("failed to read tika response: %v", err)
	}

	tables := extractHTMLTables(string(body))
	for _, table := range tables {
		markdown := tableToMarkdown(table)
		if markdown == "" {
			continue
		}
		doc.Chunks = append(doc.Chunks, &docmodel.Chunk{Text: markdown, Type: docmodel.ChunkText})
	}
	if len(tables) == 0 {
		if text := stripTags(string(body)); text != "" {
			doc.Chunks = append(doc.Chunks, &docmodel.Chunk{Text: text, Type: docmodel.ChunkText})
		}
	}
	return doc, nil
}
