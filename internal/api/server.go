package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdferret/pdferret/pkg/config"
	"github.com/pdferret/pdferret/pkg/docmodel"
	"github.com/pdferret/pdferret/pkg/ferret"
)

// DispatcherFactory builds a dispatcher bound to the requested model names.
// The handler creates one dispatcher per request, mirroring how processing
// parameters arrive with the upload.
type DispatcherFactory func(textModel, visionModel string) (*ferret.PDFerret, error)

// PerFileSettings carries the caller's per-file overrides.
type PerFileSettings struct {
	Lang          string            `json:"lang"`
	ExtraMetainfo map[string]string `json:"extra_metainfo"`
}

// ProcessParams is the JSON-encoded params form field.
type ProcessParams struct {
	TextModel       string                     `json:"text_model"`
	VisionModel     string                     `json:"vision_model"`
	Lang            string                     `json:"lang"`
	ReturnImages    bool                       `json:"return_images"`
	PerFileSettings map[string]PerFileSettings `json:"perfile_settings"`
}

// ProcessResults is the response body of both processing endpoints.
type ProcessResults struct {
	Extracted []*docmodel.Document        `json:"extracted"`
	Errors    []*docmodel.ProcessingError `json:"errors"`
}

// Handler exposes the document extraction endpoints.
type Handler struct {
	cfg     *config.Config
	factory DispatcherFactory
	logger  *logrus.Logger
	tracer  trace.Tracer
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, factory DispatcherFactory, logger *logrus.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		tracer:  otel.Tracer("api.handler"),
	}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/process_files_by_stream", h.ProcessFilesByStream).Methods("POST")
	router.HandleFunc("/process_files_by_path", h.ProcessFilesByPath).Methods("POST")
	router.HandleFunc("/health", h.Health).Methods("GET")
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProcessFilesByStream accepts a multipart batch of uploads under the
// repeatable "pdfs" part plus a JSON "params" field, runs the batch, and
// returns one extracted entry per upload in request order.
func (h *Handler) ProcessFilesByStream(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "api.ProcessFilesByStream")
	defer span.End()

	if err := r.ParseMultipartForm(h.cfg.Server.MaxUploadBytes); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid multipart request", err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	params, err := parseParams(r.FormValue("params"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid params field", err)
		return
	}

	uploads := r.MultipartForm.File["pdfs"]
	if len(uploads) == 0 {
		h.respondWithError(w, http.StatusBadRequest, "No files uploaded", fmt.Errorf("missing pdfs parts"))
		return
	}
	span.SetAttributes(attribute.Int("request.files", len(uploads)))

	seen := map[string]bool{}
	var inputs []ferret.Input
	for _, header := range uploads {
		if seen[header.Filename] {
			h.respondWithError(w, http.StatusBadRequest, "Duplicate filename in request",
				fmt.Errorf("filename %q appears twice", header.Filename))
			return
		}
		seen[header.Filename] = true

		file, err := header.Open()
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Unreadable upload", err)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Unreadable upload", err)
			return
		}

		input := ferret.Input{
			Filename: header.Filename,
			Ref:      docmodel.BytesRef(data),
			Language: params.Lang,
		}
		if settings, ok := params.PerFileSettings[header.Filename]; ok {
			if settings.Lang != "" {
				input.Language = settings.Lang
			}
			input.ExtraMetainfo = settings.ExtraMetainfo
		}
		inputs = append(inputs, input)
	}

	for filename := range params.PerFileSettings {
		if !seen[filename] {
			h.respondWithError(w, http.StatusBadRequest, "Unknown file in perfile_settings",
				fmt.Errorf("filename %q is not part of the request", filename))
			return
		}
	}

	h.runBatch(ctx, w, inputs, params)
}

// ProcessFilesByPath accepts a JSON body naming server-local files.
func (h *Handler) ProcessFilesByPath(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "api.ProcessFilesByPath")
	defer span.End()

	var request struct {
		PDFs   []string        `json:"pdfs"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	params, err := parseParams(string(request.Params))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid params field", err)
		return
	}
	span.SetAttributes(attribute.Int("request.files", len(request.PDFs)))

	seen := map[string]bool{}
	var inputs []ferret.Input
	for _, path := range request.PDFs {
		if seen[path] {
			h.respondWithError(w, http.StatusBadRequest, "Duplicate filename in request",
				fmt.Errorf("path %q appears twice", path))
			return
		}
		seen[path] = true
		input := ferret.Input{
			Filename: path,
			Ref:      docmodel.PathRef(path),
			Language: params.Lang,
		}
		if settings, ok := params.PerFileSettings[path]; ok {
			if settings.Lang != "" {
				input.Language = settings.Lang
			}
			input.ExtraMetainfo = settings.ExtraMetainfo
		}
		inputs = append(inputs, input)
	}

	h.runBatch(ctx, w, inputs, params)
}

// runBatch dispatches the prepared inputs and writes the response. Any
// pipeline outcome, including all-failed, is a 200; only a dispatcher
// infrastructure failure becomes a 500.
func (h *Handler) runBatch(ctx context.Context, w http.ResponseWriter, inputs []ferret.Input, params *ProcessParams) {
	dispatcher, err := h.factory(params.TextModel, params.VisionModel)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to build dispatcher", err)
		return
	}
	result, err := dispatcher.ExtractBatch(ctx, inputs, params.Lang)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to process batch", err)
		return
	}

	for _, doc := range result.Extracted {
		prepareDocument(doc, params.ReturnImages)
	}
	h.respondWithJSON(w, http.StatusOK, ProcessResults{
		Extracted: result.Extracted,
		Errors:    result.Errors,
	})
}

// prepareDocument scrubs the outgoing document: the file reference never
// leaves the process, and image payloads are dropped unless the caller
// asked for them (they are base64 on the wire otherwise).
func prepareDocument(doc *docmodel.Document, returnImages bool) {
	doc.MetaInfo.FileFeatures.File = nil
	if returnImages {
		return
	}
	doc.MetaInfo.Thumbnail = nil
	for _, chunk := range doc.Chunks {
		if chunk.Type == docmodel.ChunkFigure || chunk.Type == docmodel.ChunkVisualPage {
			chunk.NonEmbeddable = nil
		}
	}
}

func parseParams(raw string) (*ProcessParams, error) {
	params := &ProcessParams{Lang: "en", ReturnImages: false}
	if raw == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(raw), params); err != nil {
		return nil, err
	}
	if params.Lang == "" {
		params.Lang = "en"
	}
	if params.Lang != "en" && params.Lang != "de" {
		return nil, fmt.Errorf("unsupported lang %q", params.Lang)
	}
	return params, nil
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, status int, message string, err error) {
	h.logger.WithError(err).Error(message)
	h.respondWithJSON(w, status, map[string]string{
		"error":  message,
		"detail": err.Error(),
	})
}
