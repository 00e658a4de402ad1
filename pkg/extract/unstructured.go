package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
)

// PartitionTextExtractor partitions documents into elements via an
// Unstructured-style partitioner service. Text elements become text chunks
// with normalized bounding boxes, table elements become locked table chunks
// carrying their HTML. Elements shorter than minTextLen are dropped.
//
// Scanned inputs are routed to the hi_res strategy and, because that
// backend parallelizes internally, processed strictly serially; native
// inputs fan out over the worker pool.
type PartitionTextExtractor struct {
	baseURL    string
	strategy   string
	minTextLen int
	workers    int
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewPartitionTextExtractor builds the stage. strategy is the default for
// non-scanned inputs ("auto" unless told otherwise).
func NewPartitionTextExtractor(baseURL, strategy string, minTextLen, workers int, timeout time.Duration, logger *logrus.Logger) *PartitionTextExtractor {
	if strategy == "" {
		strategy = "auto"
	}
	if minTextLen <= 0 {
		minTextLen = 20
	}
	if workers <= 0 {
		workers = 1
	}
	return &PartitionTextExtractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		strategy:   strategy,
		minTextLen: minTextLen,
		workers:    workers,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (u *PartitionTextExtractor) Name() string            { return "partition_text_extractor" }
func (u *PartitionTextExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (u *PartitionTextExtractor) Mode() executor.Mode     { return executor.ModeProcess }

// ProcessBatch separates scanned from native inputs: native ones run over
// the pool, scanned ones serially.
func (u *PartitionTextExtractor) ProcessBatch(ctx context.Context, in *executor.Batch) (*executor.Batch, executor.Failures) {
	out := executor.NewBatch()
	failures := executor.Failures{}

	var scannedKeys, nativeKeys []string
	for _, key := range in.Keys() {
		item, _ := in.Get(key)
		doc := item.(*docmodel.Document)
		if doc.MetaInfo.FileFeatures.IsScanned {
			scannedKeys = append(scannedKeys, key)
		} else {
			nativeKeys = append(nativeKeys, key)
		}
	}
	u.logger.WithFields(logrus.Fields{
		"scanned": len(scannedKeys),
		"native":  len(nativeKeys),
	}).Info("partitioning batch")

	type result struct {
		key  string
		item docmodel.Item
		err  error
	}
	results := make(chan result, len(nativeKeys))
	var grp errgroup.Group
	grp.SetLimit(u.workers)
	for _, key := range nativeKeys {
		key := key
		item, _ := in.Get(key)
		grp.Go(func() error {
			processed, err := u.ProcessSingle(ctx, item)
			results <- result{key: key, item: processed, err: err}
			return nil
		})
	}
	grp.Wait()
	close(results)
	for r := range results {
		if r.err != nil {
			failures[r.key] = docmodel.NewProcessingError(kindOf(r.err), r.key, r.err)
			continue
		}
		out.Put(r.key, r.item)
	}

	for _, key := range scannedKeys {
		item, _ := in.Get(key)
		processed, err := u.ProcessSingle(ctx, item)
		if err != nil {
			failures[key] = docmodel.NewProcessingError(kindOf(err), key, err)
			continue
		}
		out.Put(key, processed)
	}
	return out, failures
}

func (u *PartitionTextExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	strategy := u.strategy
	if doc.MetaInfo.FileFeatures.IsScanned {
		strategy = "hi_res"
	}
	elements, err := u.partition(ctx, doc, strategy)
	if err != nil {
		return nil, err
	}

	var chunks []*docmodel.Chunk
	for _, el := range elements {
		switch el.Type {
		case "Table":
			chunks = append(chunks, &docmodel.Chunk{
				NonEmbeddable: []byte(el.Metadata.TextAsHTML),
				Page:          el.page(),
				Type:          docmodel.ChunkTable,
				Locked:        true,
			})
		case "NarrativeText", "Text", "Title", "ListItem":
			if len(el.Text) < u.minTextLen {
				continue
			}
			chunk := &docmodel.Chunk{
				Text: el.Text,
				Page: el.page(),
				Type: docmodel.ChunkText,
			}
			if box, ok := el.bbox(); ok {
				chunk.Coordinates = &box
			}
			chunks = append(chunks, chunk)
		}
	}
	doc.Chunks = chunks
	return doc, nil
}

type partitionElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		PageNumber  int        `json:"page_number"`
		TextAsHTML  string     `json:"text_as_html"`
		Coordinates *struct {
			Points       [][2]float64 `json:"points"`
			LayoutWidth  float64      `json:"layout_width"`
			LayoutHeight float64      `json:"layout_height"`
		} `json:"coordinates"`
	} `json:"metadata"`
}

func (el *partitionElement) page() *int {
	if el.Metadata.PageNumber == 0 {
		return nil
	}
	p := el.Metadata.PageNumber
	return &p
}

// bbox normalizes the element's corner points to page-relative units. The
// partitioner's y-axis points down; it is inverted before storage.
func (el *partitionElement) bbox() (docmodel.BBox, bool) {
	coords := el.Metadata.Coordinates
	if coords == nil || len(coords.Points) == 0 || coords.LayoutWidth == 0 || coords.LayoutHeight == 0 {
		return docmodel.BBox{}, false
	}
	xmin, ymin := 1e18, 1e18
	xmax, ymax := -1e18, -1e18
	for _, p := range coords.Points {
		x := p[0] / coords.LayoutWidth
		y := p[1] / coords.LayoutHeight
		xmin, xmax = minF(xmin, x), maxF(xmax, x)
		ymin, ymax = minF(ymin, y), maxF(ymax, y)
	}
	return clampBBox(docmodel.BBox{
		XMin: xmin,
		XMax: xmax,
		YMin: 1 - ymax,
		YMax: 1 - ymin,
	}), true
}

func (u *PartitionTextExtractor) partition(ctx context.Context, doc *docmodel.Document, strategy string) ([]partitionElement, error) {
	data, err := doc.MetaInfo.FileFeatures.File.Bytes()
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", doc.MetaInfo.FileFeatures.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	_ = writer.WriteField("strategy", strategy)
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/general/v0/general", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, docmodel.Externalf("partitioner request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, docmodel.Externalf("partitioner returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, docmodel.Externalf("failed to read partitioner response: %v", err)
	}
	var elements []partitionElement
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, docmodel.Parsef("partitioner returned malformed elements: %v", err)
	}
	return elements, nil
}

func kindOf(err error) docmodel.ErrorKind {
	var kinded *docmodel.KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind
	}
	return docmodel.ErrExternal
}
