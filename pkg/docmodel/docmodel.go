package docmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ChunkType classifies a chunk's content.
type ChunkType string

const (
	ChunkText       ChunkType = "text"
	ChunkFigure     ChunkType = "figure"
	ChunkTable      ChunkType = "table"
	ChunkEquation   ChunkType = "equation"
	ChunkVisualPage ChunkType = "visual_page"
	ChunkOther      ChunkType = "other"
)

// BBox is a chunk bounding box in page-relative units. All values are in
// [0, 1]; the y-axis points up (page origin at the lower left).
type BBox struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Valid reports whether the box is normalized and well ordered.
func (b BBox) Valid() bool {
	return b.XMin >= 0 && b.XMax <= 1 && b.XMin <= b.XMax &&
		b.YMin >= 0 && b.YMax <= 1 && b.YMin <= b.YMax
}

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		XMin: min(b.XMin, o.XMin),
		YMin: min(b.YMin, o.YMin),
		XMax: max(b.XMax, o.XMax),
		YMax: max(b.YMax, o.YMax),
	}
}

// MarshalJSON encodes the box as ((xmin,ymin),(xmax,ymax)) pairs.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([][2]float64{{b.XMin, b.YMin}, {b.XMax, b.YMax}})
}

// UnmarshalJSON accepts the pair-of-points form.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var pts [][2]float64
	if err := json.Unmarshal(data, &pts); err != nil {
		return err
	}
	if len(pts) != 2 {
		return fmt.Errorf("coordinates must contain exactly 2 points, got %d", len(pts))
	}
	b.XMin, b.YMin = pts[0][0], pts[0][1]
	b.XMax, b.YMax = pts[1][0], pts[1][1]
	return nil
}

// Chunk is a unit of extracted content.
type Chunk struct {
	Page          *int      `json:"page"`
	Coordinates   *BBox     `json:"coordinates"`
	Section       string    `json:"section"`
	Prefix        string    `json:"prefix"`
	Text          string    `json:"text"`
	Suffix        string    `json:"suffix"`
	NonEmbeddable []byte    `json:"non_embeddable_content"`
	Locked        bool      `json:"locked"`
	Type          ChunkType `json:"chunk_type"`
}

// Clone returns a deep copy of the chunk.
func (c *Chunk) Clone() *Chunk {
	dup := *c
	if c.Page != nil {
		p := *c.Page
		dup.Page = &p
	}
	if c.Coordinates != nil {
		b := *c.Coordinates
		dup.Coordinates = &b
	}
	if c.NonEmbeddable != nil {
		dup.NonEmbeddable = append([]byte(nil), c.NonEmbeddable...)
	}
	return &dup
}

// FileRef points at the bytes of an input file: either a path on disk or an
// in-memory buffer. A ref stays resolvable until the pipeline for its input
// completes.
type FileRef struct {
	Path string `json:"path,omitempty"`
	Data []byte `json:"-"`
}

// PathRef returns a ref backed by a filesystem path.
func PathRef(path string) *FileRef { return &FileRef{Path: path} }

// BytesRef returns a ref backed by an in-memory buffer.
func BytesRef(data []byte) *FileRef { return &FileRef{Data: data} }

// Inlined reports whether the ref carries its bytes in memory.
func (f *FileRef) Inlined() bool { return f.Path == "" }

// Open returns a reader over the referenced bytes.
func (f *FileRef) Open() (io.ReadCloser, error) {
	if f.Path != "" {
		return os.Open(f.Path)
	}
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// Bytes loads the full content of the reference.
func (f *FileRef) Bytes() ([]byte, error) {
	if f.Path != "" {
		return os.ReadFile(f.Path)
	}
	return f.Data, nil
}

// Head reads up to n leading bytes without consuming the reference.
func (f *FileRef) Head(n int) ([]byte, error) {
	if f.Path == "" {
		if len(f.Data) < n {
			n = len(f.Data)
		}
		return f.Data[:n], nil
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(fh, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// FileFeatures carries per-file facts established before extraction.
type FileFeatures struct {
	Filename  string   `json:"filename"`
	File      *FileRef `json:"-"`
	IsScanned bool     `json:"is_scanned"`
	Pages     int      `json:"npages"`
}

// MetaInfo is the normalized metadata record of a document.
type MetaInfo struct {
	DOI               string            `json:"doi"`
	Title             string            `json:"title"`
	DocumentType      string            `json:"document_type"`
	Abstract          string            `json:"abstract"`
	SearchDescription string            `json:"search_description"`
	Authors           []string          `json:"authors"`
	PubDate           string            `json:"pub_date"`
	MentionedDate     string            `json:"mentioned_date"`
	Language          string            `json:"language"`
	DetectedLanguage  string            `json:"detected_language"`
	Thumbnail         []byte            `json:"thumbnail"`
	ExtraMetainfo     map[string]string `json:"extra_metainfo"`
	FileFeatures      FileFeatures      `json:"file_features"`
}

// NewMetaInfo returns metadata with the maps initialized.
func NewMetaInfo() *MetaInfo {
	return &MetaInfo{ExtraMetainfo: map[string]string{}}
}

// Document is the record a pipeline accumulates state into: metadata plus an
// ordered chunk sequence.
type Document struct {
	MetaInfo *MetaInfo `json:"metainfo"`
	Chunks   []*Chunk  `json:"chunks"`
}

// NewDocument returns an empty document for the given file.
func NewDocument(filename string, ref *FileRef, language string) *Document {
	meta := NewMetaInfo()
	meta.Language = language
	meta.FileFeatures = FileFeatures{Filename: filename, File: ref}
	return &Document{MetaInfo: meta, Chunks: []*Chunk{}}
}

// Stub returns the placeholder emitted for a failed input: metadata with
// only the filename set.
func Stub(filename string) *Document {
	meta := NewMetaInfo()
	meta.FileFeatures = FileFeatures{Filename: filename}
	return &Document{MetaInfo: meta, Chunks: []*Chunk{}}
}

// TextChunks returns the chunks of type text, in order.
func (d *Document) TextChunks() []*Chunk {
	var out []*Chunk
	for _, c := range d.Chunks {
		if c.Type == ChunkText {
			out = append(out, c)
		}
	}
	return out
}

