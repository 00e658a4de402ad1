package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
)

// GrobidTextExtractor posts PDFs to a GROBID service and maps the returned
// TEI sections to text chunks with page-relative coordinates. With
// extractMeta set it also fills doi, title, authors, pub date and abstract.
type GrobidTextExtractor struct {
	baseURL     string
	maxPages    int
	extractMeta bool
	inspector   PDFInspector
	httpClient  *http.Client
	logger      *logrus.Logger
}

// NewGrobidTextExtractor builds the stage. maxPages bounds what is posted
// to the service (the default upstream cap is 30 pages).
func NewGrobidTextExtractor(baseURL string, maxPages int, extractMeta bool, inspector PDFInspector, timeout time.Duration, logger *logrus.Logger) *GrobidTextExtractor {
	if maxPages <= 0 {
		maxPages = 30
	}
	return &GrobidTextExtractor{
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxPages:    maxPages,
		extractMeta: extractMeta,
		inspector:   inspector,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

func (g *GrobidTextExtractor) Name() string            { return "grobid_text_extractor" }
func (g *GrobidTextExtractor) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (g *GrobidTextExtractor) Mode() executor.Mode     { return executor.ModeThread }

func (g *GrobidTextExtractor) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc, ok := item.(*docmodel.Document)
	if !ok {
		return nil, fmt.Errorf("expected document, got %s", item.ItemKind())
	}
	ref := doc.MetaInfo.FileFeatures.File
	if doc.MetaInfo.FileFeatures.Pages > g.maxPages && g.inspector != nil {
		truncated, err := g.inspector.Truncate(ref, g.maxPages)
		if err != nil {
			return nil, err
		}
		ref = truncated
	}

	tei, err := g.processFulltext(ctx, ref)
	if err != nil {
		return nil, err
	}

	if g.extractMeta {
		meta := doc.MetaInfo
		meta.DOI = tei.doi()
		meta.Title = tei.Header.Title
		meta.Authors = tei.authors()
		meta.PubDate = tei.pubDate()
		meta.Abstract = strings.TrimSpace(tei.Header.Abstract.Text())
	}

	pageSizes := tei.pageSizes()
	var chunks []*docmodel.Chunk
	for _, div := range tei.Body.Divs {
		for _, p := range div.Paragraphs {
			chunk := &docmodel.Chunk{
				Section: strings.TrimSpace(div.Head),
				Text:    strings.TrimSpace(p.Text()),
				Type:    docmodel.ChunkText,
			}
			if chunk.Text == "" {
				continue
			}
			if page, box, ok := normalizeTEICoords(p.Coords, pageSizes); ok {
				chunk.Page = &page
				chunk.Coordinates = &box
			}
			chunks = append(chunks, chunk)
		}
	}
	doc.Chunks = chunks
	return doc, nil
}

func (g *GrobidTextExtractor) processFulltext(ctx context.Context, ref *docmodel.FileRef) (*teiDocument, error) {
	data, err := ref.Bytes()
	if err != nil {
		return nil, docmodel.WithKind(docmodel.ErrInput, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("input", "input.pdf")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	_ = writer.WriteField("teiCoordinates", "p")
	_ = writer.WriteField("teiCoordinates", "head")
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/processFulltextDocument", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, docmodel.Externalf("grobid request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, docmodel.Externalf("grobid returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, docmodel.Externalf("failed to read grobid response: %v", err)
	}

	var tei teiDocument
	if err := xml.Unmarshal(raw, &tei); err != nil {
		return nil, docmodel.Parsef("grobid returned malformed TEI: %v", err)
	}
	return &tei, nil
}

// TEI document model, limited to what the extractor consumes.

type teiDocument struct {
	Header struct {
		Title    string    `xml:"fileDesc>titleStmt>title"`
		Authors  []teiName `xml:"fileDesc>sourceDesc>biblStruct>analytic>author>persName"`
		IDs      []teiIdno `xml:"fileDesc>sourceDesc>biblStruct>idno"`
		Date     teiDate   `xml:"fileDesc>publicationStmt>date"`
		Abstract teiMixed  `xml:"profileDesc>abstract"`
	} `xml:"teiHeader"`
	Facsimile struct {
		Surfaces []teiSurface `xml:"surface"`
	} `xml:"facsimile"`
	Body teiBody `xml:"text>body"`
}

type teiName struct {
	Forenames []string `xml:"forename"`
	Surname   string   `xml:"surname"`
}

type teiIdno struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type teiDate struct {
	When  string `xml:"when,attr"`
	Value string `xml:",chardata"`
}

type teiSurface struct {
	N   string `xml:"n,attr"`
	ULX string `xml:"ulx,attr"`
	ULY string `xml:"uly,attr"`
	LRX string `xml:"lrx,attr"`
	LRY string `xml:"lry,attr"`
}

type teiBody struct {
	Divs []teiDiv `xml:"div"`
}

type teiDiv struct {
	Head       string     `xml:"head"`
	Paragraphs []teiMixed `xml:"p"`
}

// teiMixed flattens an element's mixed content to text while keeping the
// coords attribute.
type teiMixed struct {
	Coords string `xml:"coords,attr"`
	Inner  string `xml:",innerxml"`
}

var teiTagPattern = tagStripper()

func (m teiMixed) Text() string {
	return teiTagPattern.ReplaceAllString(m.Inner, " ")
}

func (d *teiDocument) doi() string {
	for _, id := range d.Header.IDs {
		if strings.EqualFold(id.Type, "DOI") {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

func (d *teiDocument) authors() []string {
	var out []string
	for _, n := range d.Header.Authors {
		name := strings.TrimSpace(strings.Join(append(n.Forenames, n.Surname), " "))
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (d *teiDocument) pubDate() string {
	if d.Header.Date.When != "" {
		return d.Header.Date.When
	}
	return strings.TrimSpace(d.Header.Date.Value)
}

type teiPageSize struct {
	ulx, uly, lrx, lry float64
}

func (d *teiDocument) pageSizes() map[int]teiPageSize {
	out := map[int]teiPageSize{}
	for _, s := range d.Facsimile.Surfaces {
		n, err := strconv.Atoi(s.N)
		if err != nil {
			continue
		}
		ulx, _ := strconv.ParseFloat(s.ULX, 64)
		uly, _ := strconv.ParseFloat(s.ULY, 64)
		lrx, _ := strconv.ParseFloat(s.LRX, 64)
		lry, _ := strconv.ParseFloat(s.LRY, 64)
		out[n] = teiPageSize{ulx: ulx, uly: uly, lrx: lrx, lry: lry}
	}
	return out
}

// normalizeTEICoords combines a coords attribute ("page,x,y,w,h;...") into
// one page-relative bounding box. Boxes from other pages than the most
// common one are discarded; the y-axis is inverted so it points up.
func normalizeTEICoords(coords string, pageSizes map[int]teiPageSize) (int, docmodel.BBox, bool) {
	if coords == "" {
		return 0, docmodel.BBox{}, false
	}
	type rawBox struct {
		page             int
		xmin, ymin, w, h float64
	}
	var boxes []rawBox
	pageVotes := map[int]int{}
	for _, part := range strings.Split(coords, ";") {
		fields := strings.Split(part, ",")
		if len(fields) < 5 {
			continue
		}
		page, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		x, _ := strconv.ParseFloat(fields[1], 64)
		y, _ := strconv.ParseFloat(fields[2], 64)
		w, _ := strconv.ParseFloat(fields[3], 64)
		h, _ := strconv.ParseFloat(fields[4], 64)
		boxes = append(boxes, rawBox{page: page, xmin: x, ymin: y, w: w, h: h})
		pageVotes[page]++
	}
	if len(boxes) == 0 {
		return 0, docmodel.BBox{}, false
	}

	page, best := 0, 0
	for p, votes := range pageVotes {
		if votes > best {
			page, best = p, votes
		}
	}
	size, ok := pageSizes[page]
	if !ok {
		return 0, docmodel.BBox{}, false
	}
	pageW := size.lrx - size.ulx
	pageH := size.lry - size.uly
	if pageW <= 0 || pageH <= 0 {
		return 0, docmodel.BBox{}, false
	}

	xmin, ymin := 1e18, 1e18
	xmax, ymax := -1e18, -1e18
	for _, b := range boxes {
		if b.page != page {
			continue
		}
		xmin = minF(xmin, b.xmin)
		ymin = minF(ymin, b.ymin)
		xmax = maxF(xmax, b.xmin+b.w)
		ymax = maxF(ymax, b.ymin+b.h)
	}

	// native TEI coordinates are top-origin: invert the y-axis
	box := docmodel.BBox{
		XMin: (xmin - size.ulx) / pageW,
		XMax: (xmax - size.ulx) / pageW,
		YMin: 1 - (ymax-size.uly)/pageH,
		YMax: 1 - (ymin-size.uly)/pageH,
	}
	box = clampBBox(box)
	return page, box, true
}

func clampBBox(b docmodel.BBox) docmodel.BBox {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return docmodel.BBox{
		XMin: clamp(b.XMin), YMin: clamp(b.YMin),
		XMax: clamp(b.XMax), YMax: clamp(b.YMax),
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
