package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vaultdrive/internal/auth"
	"vaultdrive/internal/domain"
	"vaultdrive/internal/service"
)

const maxUploadSize = 100 * 1024 * 1024 // 100MB максимальный размер загрузки

type DocumentHandler struct {
	documents *service.DocumentService
	directory *service.DirectoryService
	access    service.AccessEvaluator
}

func NewDocumentHandler(documents *service.DocumentService, directory *service.DirectoryService, access service.AccessEvaluator) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		directory: directory,
		access:    access,
	}
}

// CreateDocument обрабатывает запрос на создание документа
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title  string               `json:"title"`
		Folder string               `json:"folder"`
		Tags   []string             `json:"tags"`
		Access *domain.AccessConfig `json:"access"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Failed to decode request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	in := service.CreateDocumentInput{
		Title:     req.Title,
		Folder:    req.Folder,
		Tags:      req.Tags,
		Access:    req.Access,
		CreatedBy: principal.ID,
	}

	// Документ привязывается к тенанту пользователя; без валидного тенанта
	// создается внеконтурный (легаси) документ
	if tenantID, err := uuid.Parse(principal.TenantID); err == nil {
		in.TenantID = &tenantID
	}

	doc, err := h.documents.Create(r.Context(), in)
	if err != nil {
		writeError(w, "Failed to create document", err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// ListDocuments обрабатывает запрос каталога документов
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	scope := auth.ResolveScope(r, h.access.IsAdmin(principal))

	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	docs, err := h.directory.List(r.Context(), scope, principal, filter)
	if err != nil {
		writeError(w, "Failed to list documents", err)
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

// GetDocument обрабатывает запрос метаданных документа
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	scope := auth.ResolveScope(r, h.access.IsAdmin(principal))

	doc, err := h.directory.Get(r.Context(), scope, principal, docID)
	if err != nil {
		writeError(w, "Failed to get document", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// DownloadLatest отдает содержимое текущей версии документа
func (h *DocumentHandler) DownloadLatest(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	scope := auth.ResolveScope(r, h.access.IsAdmin(principal))

	obj, version, err := h.documents.FetchLatest(r.Context(), scope, principal, docID)
	if err != nil {
		writeError(w, "Failed to download document", err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", version.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", version.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(version.SizeBytes, 10))

	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("Failed to stream document %s: %v", docID, err)
	}
}

// AddVersion обрабатывает загрузку новой версии документа
func (h *DocumentHandler) AddVersion(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		log.Printf("Failed to parse multipart form: %v", err)
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	doc, err := h.documents.AddVersion(r.Context(), docID, service.VersionUpload{
		Content:  file,
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
	}, principal)
	if err != nil {
		writeError(w, "Failed to add version", err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// UpdateDocument обрабатывает частичное обновление метаданных
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	var patch domain.MetadataPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		log.Printf("Failed to decode request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := h.documents.UpdateMetadata(r.Context(), docID, patch, principal)
	if err != nil {
		writeError(w, "Failed to update document", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument обрабатывает мягкое удаление; с параметром hard=true —
// полное удаление записи (только для администраторов)
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("hard") == "true" {
		if err := h.documents.HardDelete(r.Context(), docID, principal); err != nil {
			writeError(w, "Failed to delete document", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.documents.SoftDelete(r.Context(), docID, principal); err != nil {
		writeError(w, "Failed to delete document", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RestoreDocument обрабатывает восстановление документа
func (h *DocumentHandler) RestoreDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	doc, err := h.documents.Restore(r.Context(), docID, principal)
	if err != nil {
		writeError(w, "Failed to restore document", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// DeleteVersion обрабатывает мягкое удаление версии
func (h *DocumentHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid version index", http.StatusBadRequest)
		return
	}

	if err := h.documents.SoftDeleteVersion(r.Context(), docID, index, principal); err != nil {
		writeError(w, "Failed to delete version", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RestoreVersion обрабатывает восстановление версии; с параметром pin=true
// версия становится текущей безусловно
func (h *DocumentHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid version index", http.StatusBadRequest)
		return
	}

	pin := r.URL.Query().Get("pin") == "true"

	doc, err := h.documents.RestoreVersion(r.Context(), docID, index, pin, principal)
	if err != nil {
		writeError(w, "Failed to restore version", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// AddLink обрабатывает привязку документа к внешней сущности
func (h *DocumentHandler) AddLink(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, h.documents.AddLink)
}

// RemoveLink обрабатывает отвязку документа от внешней сущности
func (h *DocumentHandler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, h.documents.RemoveLink)
}

func (h *DocumentHandler) handleLink(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, docID uuid.UUID, linkType, refID string, actor *domain.Principal) (*domain.Document, error),
) {
	principal, err := auth.ResolvePrincipal(r)
	if err != nil {
		log.Printf("Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	docID, err := parseDocumentID(r)
	if err != nil {
		http.Error(w, "Invalid document UUID", http.StatusBadRequest)
		return
	}

	var req struct {
		Type  string `json:"type"`
		RefID string `json:"ref_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Failed to decode request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := op(r.Context(), docID, req.Type, req.RefID, principal)
	if err != nil {
		writeError(w, "Failed to update links", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func parseDocumentID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "uuid"))
}

func parseFilter(r *http.Request) (domain.DirectoryFilter, error) {
	q := r.URL.Query()

	filter := domain.DirectoryFilter{
		Query:          q.Get("q"),
		Tag:            q.Get("tag"),
		Folder:         q.Get("folder"),
		LinkedType:     q.Get("linked_type"),
		Uploader:       q.Get("uploader"),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}

	if raw := q.Get("linked_to"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid linked_to: %s", raw)
		}
		filter.LinkedTo = &id
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid from date: %s", raw)
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid to date: %s", raw)
		}
		filter.To = &t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit: %s", raw)
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset: %s", raw)
		}
		filter.Offset = n
	}

	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError сопоставляет виды ошибок ядра с HTTP статусами
func writeError(w http.ResponseWriter, msg string, err error) {
	log.Printf("%s: %v", msg, err)

	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, msg, http.StatusBadRequest)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, msg, http.StatusForbidden)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, msg, http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyDeleted), errors.Is(err, domain.ErrNotDeleted):
		http.Error(w, msg, http.StatusConflict)
	case errors.Is(err, domain.ErrStorageUnavailable):
		http.Error(w, msg, http.StatusBadGateway)
	default:
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
