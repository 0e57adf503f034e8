package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/internal/events"
	"github.com/stateful/cellbook/internal/notebookfile"
	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/document/convert"
)

// Handler holds the API route handlers of one notebook file.
type Handler struct {
	file   *notebookfile.File
	logger *zap.Logger
	broker *events.Broker
}

func NewHandler(file *notebookfile.File, logger *zap.Logger, broker *events.Broker) *Handler {
	return &Handler{file: file, logger: logger, broker: broker}
}

type insertRequest struct {
	Type        string         `json:"block_type"`
	Source      block.Source   `json:"source"`
	Metadata    map[string]any `json:"metadata"`
	After       string         `json:"after"`
	Collapsible string         `json:"collapsible"`
}

type updateRequest struct {
	Type     *string        `json:"block_type"`
	Source   *block.Source  `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

type deleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type executeRequest struct {
	Code         string `json:"code" validate:"required"`
	StoreHistory *bool  `json:"store_history"`
	Silent       *bool  `json:"silent"`
	StopOnError  *bool  `json:"stop_on_error"`
}

type listResponse struct {
	Success    bool `json:"success"`
	Blocks     any  `json:"blocks"`
	BlockCount int  `json:"blockCount"`
}

// GetNotebook handles GET /notebook and returns the document with its
// outputs in nbformat.
func (h *Handler) GetNotebook(w http.ResponseWriter, r *http.Request) {
	nb, err := convert.Export(h.file.Doc.Tree, h.file.Doc.Registry, convert.ExportOptions{IncludeOutputs: true})
	if err != nil {
		h.logger.Error("failed to export notebook", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// ListBlocks handles GET /blocks?format=brief|detailed.
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := h.file.Adapter

	var blocks any
	switch format := r.URL.Query().Get("format"); format {
	case "", "brief":
		blocks = a.BriefBlocks(ctx)
	case "detailed":
		blocks = a.Blocks(ctx)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown format: "+format))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Blocks: blocks, BlockCount: a.BlockCount(ctx)})
}

// GetBlock handles GET /blocks/{id}.
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b := h.file.Adapter.BlockByID(r.Context(), id)
	if b == nil {
		writeJSON(w, http.StatusNotFound, errorBody("Block "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// InsertBlock handles POST /blocks.
func (h *Handler) InsertBlock(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	b := block.Block{Source: req.Source}
	if req.Type != "" {
		b.Type = block.ParseType(req.Type)
		if b.Type == block.TypeUnknown {
			b.RawType = req.Type
		}
	}
	for k, v := range req.Metadata {
		b.SetMeta(k, v)
	}
	if req.Collapsible != "" {
		b.SetMeta("collapsible", req.Collapsible)
	}
	after := req.After
	if after == "" {
		after = adapter.Bottom
	}

	h.mutation(r.Context(), w, http.StatusCreated, func(ctx context.Context) adapter.Result {
		return h.file.Adapter.InsertBlock(ctx, b, after)
	})
}

// UpdateBlock handles PUT /blocks/{id}. Omitted fields keep their value.
func (h *Handler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	patch := adapter.Patch{Type: req.Type, Metadata: req.Metadata}
	if req.Source != nil {
		s := string(*req.Source)
		patch.Source = &s
	}

	id := chi.URLParam(r, "id")
	h.mutation(r.Context(), w, http.StatusOK, func(ctx context.Context) adapter.Result {
		return h.file.Adapter.PatchBlock(ctx, id, patch)
	})
}

// DeleteBlocks handles DELETE /blocks with the ids in the body or as
// repeated id query parameters.
func (h *Handler) DeleteBlocks(w http.ResponseWriter, r *http.Request) {
	req := deleteRequest{IDs: r.URL.Query()["id"]}
	if len(req.IDs) == 0 {
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	h.mutation(r.Context(), w, http.StatusOK, func(ctx context.Context) adapter.Result {
		return h.file.Adapter.DeleteBlocks(ctx, req.IDs)
	})
}

// RunBlock handles POST /blocks/{id}/run.
func (h *Handler) RunBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutation(r.Context(), w, http.StatusOK, func(ctx context.Context) adapter.Result {
		return h.file.Adapter.RunBlock(ctx, id)
	})
}

// RunAllBlocks handles POST /run.
func (h *Handler) RunAllBlocks(w http.ResponseWriter, r *http.Request) {
	h.mutation(r.Context(), w, http.StatusOK, h.file.Adapter.RunAllBlocks)
}

// ClearAllOutputs handles POST /outputs/clear.
func (h *Handler) ClearAllOutputs(w http.ResponseWriter, r *http.Request) {
	h.mutation(r.Context(), w, http.StatusOK, h.file.Adapter.ClearAllOutputs)
}

// Catalog handles GET /catalog?category=.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	category := block.Category(r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, h.file.Adapter.ListAvailableBlocks(category))
}

// ExecuteCode handles POST /execute. The document is not changed.
func (h *Handler) ExecuteCode(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	opts := adapter.DefaultExecuteOptions()
	if req.StoreHistory != nil {
		opts.StoreHistory = *req.StoreHistory
	}
	if req.Silent != nil {
		opts.Silent = *req.Silent
	}
	if req.StopOnError != nil {
		opts.StopOnError = *req.StopOnError
	}

	result := h.file.Adapter.ExecuteCode(r.Context(), req.Code, &opts)
	if !result.Success {
		writeJSON(w, failureStatus(result.Error), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// mutation runs op, saves the file when it succeeded and writes the
// result.
func (h *Handler) mutation(ctx context.Context, w http.ResponseWriter, status int, op func(context.Context) adapter.Result) {
	result := op(ctx)
	if !result.Success {
		writeJSON(w, failureStatus(result.Error), result)
		return
	}

	h.broker.Publish(events.Event{Type: events.TypeBlocksChanged, Data: result})

	if err := h.file.Save(); err != nil {
		h.logger.Error("failed to save notebook file", zap.String("path", h.file.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to save notebook"))
		return
	}
	h.broker.Publish(events.Event{Type: events.TypeNotebookSaved, Data: map[string]string{"path": h.file.Path}})

	writeJSON(w, status, result)
}

func failureStatus(msg string) int {
	if strings.Contains(strings.ToLower(msg), "not found") {
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}
