// Package handlers exposes the ingestion and classification pipeline over a
// thin HTTP surface: upload, bulk classify, background tasks, taxonomy and
// manual category edits.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dkvirkvelia/bankledger/internal/api/middleware"
	"github.com/dkvirkvelia/bankledger/internal/classify"
	"github.com/dkvirkvelia/bankledger/internal/ingest"
	"github.com/dkvirkvelia/bankledger/internal/ledger"
	"github.com/dkvirkvelia/bankledger/internal/tasks"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

// UploadHandler handles statement uploads.
type UploadHandler struct {
	service  *ingest.Service
	maxBytes int64
	log      zerolog.Logger
}

// NewUploadHandler creates the upload handler. maxBytes caps the statement
// file size.
func NewUploadHandler(service *ingest.Service, maxBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{service: service, maxBytes: maxBytes, log: log}
}

// Upload handles POST /api/upload. The statement arrives as the multipart
// field "file"; a parse failure rejects the whole upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Multipart field 'file' is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, "No filename provided")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		middleware.WriteError(w, http.StatusBadRequest, "File must be a CSV file")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Error reading file")
		return
	}

	result, err := h.service.Upload(r.Context(), header.Filename, data)
	if err != nil {
		if errors.Is(err, ledger.ErrMalformedInput) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("Upload failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// BulkClassifier is the synchronous classification dependency.
type BulkClassifier interface {
	ClassifyAll(ctx context.Context, recategorize bool) (classify.Result, error)
}

// TaskStarter is the background classification dependency.
type TaskStarter interface {
	Start(ctx context.Context, recategorize bool) (tasks.Snapshot, bool, error)
}

// ClassifyHandler handles both classification modes and task polling.
type ClassifyHandler struct {
	bulk     BulkClassifier
	runner   TaskStarter
	registry *tasks.Registry
	store    ledger.Store
	log      zerolog.Logger
}

// NewClassifyHandler creates the classification handler.
func NewClassifyHandler(bulk BulkClassifier, runner TaskStarter, registry *tasks.Registry, store ledger.Store, log zerolog.Logger) *ClassifyHandler {
	return &ClassifyHandler{
		bulk:     bulk,
		runner:   runner,
		registry: registry,
		store:    store,
		log:      log,
	}
}

type classifyRequest struct {
	Recategorize bool `json:"recategorize"`
}

func decodeClassifyRequest(r *http.Request) (classifyRequest, error) {
	var req classifyRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return req, err
	}
	return req, nil
}

// Classify handles POST /api/classify: the caller-blocking bulk mode.
func (h *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	req, err := decodeClassifyRequest(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.bulk.ClassifyAll(r.Context(), req.Recategorize)
	if err != nil {
		h.log.Error().Err(err).Msg("Bulk classification failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Classification failed")
		return
	}

	if result.Errors == nil {
		result.Errors = []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// StartTask handles POST /api/classify/start: 202 with the new task, or 200
// with the already-running one.
func (h *ClassifyHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	req, err := decodeClassifyRequest(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, created, err := h.runner.Start(r.Context(), req.Recategorize)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to start classification task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to start classification task")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	middleware.WriteJSON(w, status, snap)
}

// GetTask handles GET /api/classify/tasks/{id}.
func (h *ClassifyHandler) GetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	snap, err := h.registry.Get(taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to get task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get task")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, snap)
}

// CancelTask handles POST /api/classify/tasks/{id}/cancel. Idempotent: the
// response is the task's state after the (possibly repeated) request.
func (h *ClassifyHandler) CancelTask(w http.ResponseWriter, r *http.Request, taskID string) {
	snap, err := h.registry.RequestCancel(taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to cancel task")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to cancel task")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, snap)
}

// Status handles GET /api/classify/status.
func (h *ClassifyHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.ClassificationCounts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to count records")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, counts)
}

// TaxonomyHandler serves the category taxonomy.
type TaxonomyHandler struct {
	provider taxonomy.Provider
	log      zerolog.Logger
}

// NewTaxonomyHandler creates the taxonomy handler.
func NewTaxonomyHandler(provider taxonomy.Provider, log zerolog.Logger) *TaxonomyHandler {
	return &TaxonomyHandler{provider: provider, log: log}
}

// List handles GET /api/taxonomy.
func (h *TaxonomyHandler) List(w http.ResponseWriter, r *http.Request) {
	set, err := h.provider.Taxonomy(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve taxonomy")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve taxonomy")
		return
	}

	categories := set.Categories()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// TransactionsHandler handles manual record edits.
type TransactionsHandler struct {
	store    ledger.Store
	provider taxonomy.Provider
	log      zerolog.Logger
}

// NewTransactionsHandler creates the transactions handler.
func NewTransactionsHandler(store ledger.Store, provider taxonomy.Provider, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: store, provider: provider, log: log}
}

// UpdateCategory handles PATCH /api/transactions/{id}/category. The pair is
// validated against the taxonomy and stored in canonical casing; a manual
// edit always clears the auto-classified flag.
func (h *TransactionsHandler) UpdateCategory(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	var req struct {
		Category    string `json:"category"`
		Subcategory string `json:"subcategory"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	set, err := h.provider.Taxonomy(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve taxonomy")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve taxonomy")
		return
	}

	category, subcategory, ok := set.Canonical(req.Category, req.Subcategory)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Unknown category/subcategory pair")
		return
	}

	if err := h.store.UpdateRecordCategory(r.Context(), id, category, subcategory); err != nil {
		if errors.Is(err, ledger.ErrRecordNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to update category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update category")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":          id,
		"category":    category,
		"subcategory": subcategory,
	})
}

// ArchiveLister lists archived statement files.
type ArchiveLister interface {
	List(ctx context.Context) ([]string, error)
}

// StatementsHandler serves the statement archive listing.
type StatementsHandler struct {
	archive ArchiveLister
	log     zerolog.Logger
}

// NewStatementsHandler creates the statements handler.
func NewStatementsHandler(archive ArchiveLister, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{archive: archive, log: log}
}

// List handles GET /api/statements.
func (h *StatementsHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.archive.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list archived statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list archived statements")
		return
	}
	if names == nil {
		names = []string{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": names,
		"count":      len(names),
	})
}
