package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// uploadField is the multipart form field carrying the files.
	uploadField = "file"

	// multipartMemory is held in memory before parts spill to disk.
	multipartMemory = 32 << 20

	// Messages the legacy routes have always returned.
	msgFilesReceived  = "Files received. Processing in the background."
	msgNoFiles        = "No files uploaded!"
	msgNoFilename     = "Please provide a filename to delete."
	msgFileNotFound   = "File not found in memory."
	msgDeleteFailed   = "Failed to delete the file."
	msgProcessFailed  = "Failed to process files."
	msgDeletedPattern = "File '%s' deleted successfully."
)

// handleUpload handles POST /api/documents and POST /upload. It reads the
// multipart batch, submits it for background ingestion, and replies 202 as
// soon as the batch is accepted.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	cfg := s.docs.Config()

	// Bound the whole body: every allowed file plus room for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, int64(cfg.MaxFiles)*cfg.MaxFileSize+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.uploadRequestsTotal.WithLabelValues("invalid").Inc()
			writeJSONError(ctx, w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.metrics.uploadRequestsTotal.WithLabelValues("invalid").Inc()
		writeJSONError(ctx, w, msgNoFiles, http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		s.metrics.uploadRequestsTotal.WithLabelValues("invalid").Inc()
		writeJSONError(ctx, w, msgNoFiles, http.StatusBadRequest)
		return
	}
	if len(headers) > cfg.MaxFiles {
		s.metrics.uploadRequestsTotal.WithLabelValues("invalid").Inc()
		writeJSONError(ctx, w, fmt.Sprintf("at most %d files per upload", cfg.MaxFiles), http.StatusBadRequest)
		return
	}

	uploads := make([]ingestion.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > cfg.MaxFileSize {
			s.metrics.uploadRequestsTotal.WithLabelValues("invalid").Inc()
			writeJSONError(ctx, w, fmt.Sprintf("%s exceeds the %d byte limit", fh.Filename, cfg.MaxFileSize), http.StatusRequestEntityTooLarge)
			return
		}
		data, err := readPart(fh)
		if err != nil {
			log.Error("server: read upload part", slog.String("file", fh.Filename), slog.Any("error", err))
			s.metrics.uploadRequestsTotal.WithLabelValues("error").Inc()
			writeJSONError(ctx, w, msgProcessFailed, http.StatusInternalServerError)
			return
		}
		uploads = append(uploads, ingestion.Upload{Name: fh.Filename, Data: data})
	}

	task, err := s.docs.Submit(ctx, uploads)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadRequest {
			s.metrics.uploadRequestsTotal.WithLabelValues("invalid").Inc()
			writeJSONError(ctx, w, err.Error(), status)
			return
		}
		log.Error("server: submit upload", slog.Any("error", err))
		s.metrics.uploadRequestsTotal.WithLabelValues("error").Inc()
		writeJSONError(ctx, w, msgProcessFailed, http.StatusInternalServerError)
		return
	}

	s.metrics.uploadRequestsTotal.WithLabelValues("accepted").Inc()
	s.metrics.uploadFilesTotal.Add(float64(len(uploads)))
	writeJSON(ctx, w, http.StatusAccepted, uploadResponse{
		Message:   msgFilesReceived,
		TaskID:    task.ID,
		Documents: task.Documents,
	})
}

// readPart reads one uploaded file into memory.
func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, documentsResponse{Documents: s.docs.List()})
}

// handleDebug handles GET /debug with the legacy response shape.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, debugResponse{StoredFiles: s.docs.List()})
}

// handleDeleteByID handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request) {
	s.deleteDocument(w, r, r.PathValue("id"))
}

// handleDeleteByBody handles DELETE /api/documents and DELETE /delete with a
// {"filename"} body.
func (s *Server) handleDeleteByBody(w http.ResponseWriter, r *http.Request) {
	name, ok := decodeFilename(w, r)
	if !ok {
		return
	}
	s.deleteDocument(w, r, name)
}

// decodeFilename reads the delete request body, replying 400 when the
// filename is missing.
func decodeFilename(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(r.Context(), w, "invalid request body", http.StatusBadRequest)
		return "", false
	}
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		writeJSONError(r.Context(), w, msgNoFilename, http.StatusBadRequest)
		return "", false
	}
	return name, true
}

// deleteDocument removes a Ready document and replies with the outcome.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if err := s.docs.Delete(ctx, id); err != nil {
		if errors.Is(err, rag.ErrNotFound) {
			writeJSONError(ctx, w, msgFileNotFound, http.StatusNotFound)
			return
		}
		logging.FromContext(ctx).Error("server: delete document", slog.String("document", id), slog.Any("error", err))
		writeJSONError(ctx, w, msgDeleteFailed, http.StatusInternalServerError)
		return
	}
	writeJSON(ctx, w, http.StatusOK, messageResponse{Message: fmt.Sprintf(msgDeletedPattern, id)})
}

// handleDocumentStatus handles GET /api/documents/{id}/status.
func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := s.docs.Status(ctx, r.PathValue("id"))
	if err != nil {
		status := statusFor(err)
		if status != http.StatusNotFound {
			logging.FromContext(ctx).Error("server: document status", slog.Any("error", err))
			writeJSONError(ctx, w, "failed to load status", status)
			return
		}
		writeJSONError(ctx, w, "document not found", status)
		return
	}
	writeJSON(ctx, w, http.StatusOK, st)
}

// handleTaskStatus handles GET /api/tasks/{id}.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ts, err := s.docs.TaskStatus(ctx, r.PathValue("id"))
	if err != nil {
		status := statusFor(err)
		if status != http.StatusNotFound {
			logging.FromContext(ctx).Error("server: task status", slog.Any("error", err))
			writeJSONError(ctx, w, "failed to load task", status)
			return
		}
		writeJSONError(ctx, w, "task not found", status)
		return
	}
	writeJSON(ctx, w, http.StatusOK, taskResponse{
		TaskID:    ts.ID,
		Done:      ts.Done(),
		CreatedAt: ts.CreatedAt,
		Documents: ts.Documents,
	})
}
