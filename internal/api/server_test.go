package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdferret/pdferret/pkg/config"
	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/executor"
	"github.com/pdferret/pdferret/pkg/ferret"
	"github.com/pdferret/pdferret/pkg/metrics"
	"github.com/pdferret/pdferret/pkg/pipeline"
)

// echoStage turns the uploaded bytes into one text chunk and attaches a
// fake thumbnail and figure, enough to exercise the image scrubbing.
type echoStage struct{}

func (echoStage) Name() string            { return "echo" }
func (echoStage) Kind() docmodel.ItemKind { return docmodel.KindDocument }
func (echoStage) Mode() executor.Mode     { return executor.ModeSerial }

func (echoStage) ProcessSingle(ctx context.Context, item docmodel.Item) (docmodel.Item, error) {
	doc := item.(*docmodel.Document)
	data, err := doc.MetaInfo.FileFeatures.File.Bytes()
	if err != nil {
		return nil, err
	}
	doc.MetaInfo.Thumbnail = []byte{0x89, 0x50, 0x4E, 0x47}
	doc.Chunks = append(doc.Chunks,
		&docmodel.Chunk{Text: string(data), Type: docmodel.ChunkText},
		&docmodel.Chunk{NonEmbeddable: []byte{0xFF, 0xD8}, Type: docmodel.ChunkFigure, Locked: true},
		&docmodel.Chunk{NonEmbeddable: []byte("<table></table>"), Type: docmodel.ChunkTable, Locked: true},
	)
	return doc, nil
}

func testRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg, err := config.Load("")
	require.NoError(t, err)

	factory := func(textModel, visionModel string) (*ferret.PDFerret, error) {
		registry := pipeline.NewRegistry()
		registry.Register("txt", pipeline.New("txt", logger, echoStage{}))
		m := metrics.New(prometheus.NewRegistry())
		return ferret.New(cfg, registry, m, logger), nil
	}

	router := mux.NewRouter()
	NewHandler(cfg, factory, logger).RegisterRoutes(router)
	return router
}

func multipartRequest(t *testing.T, files map[string]string, params string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("pdfs", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	if params != "" {
		require.NoError(t, writer.WriteField("params", params))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/process_files_by_stream", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func doRequest(t *testing.T, router *mux.Router, req *http.Request) (*httptest.ResponseRecorder, *ProcessResults) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var results ProcessResults
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	}
	return rec, &results
}

func TestProcessFilesByStream(t *testing.T) {
	router := testRouter(t)

	rec, results := doRequest(t, router, multipartRequest(t,
		map[string]string{"notes.txt": "text body of notes"}, `{"lang": "en"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, results.Extracted, 1)
	assert.Empty(t, results.Errors)
	doc := results.Extracted[0]
	assert.Equal(t, "notes.txt", doc.MetaInfo.FileFeatures.Filename)
	require.NotEmpty(t, doc.Chunks)
	assert.Equal(t, "text body of notes", doc.Chunks[0].Text)
}

func TestProcessFilesByStreamScrubsImagesByDefault(t *testing.T) {
	router := testRouter(t)

	rec, results := doRequest(t, router, multipartRequest(t,
		map[string]string{"notes.txt": "body"}, `{"lang": "en", "return_images": false}`))

	require.Equal(t, http.StatusOK, rec.Code)
	doc := results.Extracted[0]
	assert.Nil(t, doc.MetaInfo.Thumbnail)
	for _, ch := range doc.Chunks {
		switch ch.Type {
		case docmodel.ChunkFigure:
			assert.Nil(t, ch.NonEmbeddable)
		case docmodel.ChunkTable:
			assert.NotEmpty(t, ch.NonEmbeddable, "table HTML must survive image scrubbing")
		}
	}
}

func TestProcessFilesByStreamReturnsImagesWhenAsked(t *testing.T) {
	router := testRouter(t)

	rec, results := doRequest(t, router, multipartRequest(t,
		map[string]string{"notes.txt": "body"}, `{"lang": "en", "return_images": true}`))

	require.Equal(t, http.StatusOK, rec.Code)
	doc := results.Extracted[0]
	assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47}, []byte(doc.MetaInfo.Thumbnail))
}

func TestProcessFilesByStreamDuplicateFilenames(t *testing.T) {
	router := testRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for i := 0; i < 2; i++ {
		part, err := writer.CreateFormFile("pdfs", "same.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(fmt.Sprintf("copy %d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/process_files_by_stream", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec, _ := doRequest(t, router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessFilesByStreamUnknownPerFileKey(t *testing.T) {
	router := testRouter(t)

	rec, _ := doRequest(t, router, multipartRequest(t,
		map[string]string{"notes.txt": "body"},
		`{"lang": "en", "perfile_settings": {"other.txt": {"lang": "de"}}}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessFilesByStreamUnknownExtension(t *testing.T) {
	router := testRouter(t)

	rec, results := doRequest(t, router, multipartRequest(t,
		map[string]string{"missing.xyz": "bytes"}, `{"lang": "en"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, results.Extracted, 1)
	assert.Equal(t, "missing.xyz", results.Extracted[0].MetaInfo.FileFeatures.Filename)
	require.Len(t, results.Errors, 1)
	assert.Equal(t, "missing.xyz", results.Errors[0].File)
	assert.Equal(t, docmodel.ErrNoPipeline, results.Errors[0].Kind)
}

func TestProcessFilesByStreamInvalidLang(t *testing.T) {
	router := testRouter(t)

	rec, _ := doRequest(t, router, multipartRequest(t,
		map[string]string{"notes.txt": "body"}, `{"lang": "xx"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessFilesByStreamNoFiles(t *testing.T) {
	router := testRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("params", `{"lang": "en"}`))
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/process_files_by_stream", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec, _ := doRequest(t, router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessFilesByStreamPerFileLanguage(t *testing.T) {
	router := testRouter(t)

	rec, results := doRequest(t, router, multipartRequest(t,
		map[string]string{"notes.txt": "body"},
		`{"lang": "en", "perfile_settings": {"notes.txt": {"lang": "de", "extra_metainfo": {"k": "v"}}}}`))

	require.Equal(t, http.StatusOK, rec.Code)
	doc := results.Extracted[0]
	assert.Equal(t, "de", doc.MetaInfo.Language)
	assert.Equal(t, "v", doc.MetaInfo.ExtraMetainfo["k"])
}

func TestHealth(t *testing.T) {
	router := testRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
