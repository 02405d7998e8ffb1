package uploads

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rbaliyan/board"
)

// multipartOverhead is added to the body limit for boundaries and part headers.
const multipartOverhead = 1 << 20

// Form field names of the upload endpoints.
const (
	FieldFile  = "file"
	FieldFiles = "files"
)

// MultiResult is one entry of a multi-file upload response. Exactly one of the
// embedded result and Error is set.
type MultiResult struct {
	*board.UploadResult
	Error string `json:"error,omitempty"`
}

// MultiResponse is the body returned by POST /upload/multiple.
type MultiResponse struct {
	Files []MultiResult `json:"files"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns a router serving the upload endpoints:
//
//	POST   /upload                 single file, form field "file"
//	POST   /upload/multiple        several files, form field "files"
//	GET    <prefix>/{name}         file content
//	DELETE <prefix>/{name}         delete an unreferenced upload
//	POST   <prefix>/{name}/refs    add a reference
//	DELETE <prefix>/{name}/refs    release a reference
func (m *Manager) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	m.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the upload endpoints on r.
func (m *Manager) RegisterHTTP(r chi.Router) {
	r.Route("/upload", func(r chi.Router) {
		r.Post("/", m.handleUpload)
		r.Post("/multiple", m.handleUploadMultiple)
	})
	r.Route(strings.TrimSuffix(m.opts.publicPrefix, "/"), func(r chi.Router) {
		r.Get("/{name}", m.handleServe)
		r.Delete("/{name}", m.handleDelete)
		r.Post("/{name}/refs", m.handleAddRef)
		r.Delete("/{name}/refs", m.handleRemoveRef)
	})
}

func (m *Manager) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !m.parseForm(w, r, 1) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[FieldFile]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "missing form field \""+FieldFile+"\"")
		return
	}

	res, err := m.uploadPart(r, headers[0])
	if err != nil {
		m.logger.Warn("upload failed", "filename", headers[0].Filename, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			writeError(w, status, "file upload failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	m.logger.Info("file uploaded", "filename", res.Filename, "url", res.URL,
		"request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, res)
}

func (m *Manager) handleUploadMultiple(w http.ResponseWriter, r *http.Request) {
	maxFiles := m.opts.limits.MaxFiles
	if maxFiles <= 0 {
		maxFiles = board.DefaultMaxFiles
	}
	if !m.parseForm(w, r, maxFiles) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[FieldFiles]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "missing form field \""+FieldFiles+"\"")
		return
	}
	if m.opts.limits.MaxFiles > 0 && len(headers) > m.opts.limits.MaxFiles {
		writeError(w, http.StatusBadRequest, "too many files")
		return
	}

	resp := MultiResponse{Files: make([]MultiResult, 0, len(headers))}
	for _, fh := range headers {
		res, err := m.uploadPart(r, fh)
		if err != nil {
			m.logger.Warn("upload failed", "filename", fh.Filename, "error", err,
				"request_id", middleware.GetReqID(r.Context()))
			resp.Files = append(resp.Files, MultiResult{Error: fmt.Sprintf("failed to upload %s: %v", fh.Filename, err)})
			continue
		}
		resp.Files = append(resp.Files, MultiResult{UploadResult: &res})
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseForm bounds the request body to files*MaxFileSize plus overhead and
// parses it. It writes the error response and returns false on failure.
func (m *Manager) parseForm(w http.ResponseWriter, r *http.Request, files int) bool {
	if max := m.opts.limits.MaxFileSize; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(files)*max+multipartOverhead)
	}
	if err := r.ParseMultipartForm(m.opts.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		default:
			writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		}
		return false
	}
	return true
}

func (m *Manager) uploadPart(r *http.Request, fh *multipart.FileHeader) (board.UploadResult, error) {
	if max := m.opts.limits.MaxFileSize; max > 0 && fh.Size > max {
		return board.UploadResult{}, &board.LimitError{Filename: fh.Filename, Limit: max, Actual: fh.Size, Err: board.ErrFileTooLarge}
	}
	src, err := fh.Open()
	if err != nil {
		return board.UploadResult{}, err
	}
	defer src.Close()

	f, err := board.NewFile(fh.Filename, src)
	if err != nil {
		return board.UploadResult{}, err
	}
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		f.MIMEType = ct
	}
	return m.UploadResult(r.Context(), f)
}

func (m *Manager) handleServe(w http.ResponseWriter, r *http.Request) {
	id, ok := uploadID(w, r)
	if !ok {
		return
	}
	rc, rec, err := m.Open(r.Context(), id)
	if err != nil {
		m.writeStoreError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, rec.Filename, rec.CreatedAt, rs)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		m.logger.Warn("serve upload interrupted", "id", id, "error", err)
	}
}

func (m *Manager) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := uploadID(w, r)
	if !ok {
		return
	}
	if err := m.Delete(r.Context(), id); err != nil {
		m.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleAddRef(w http.ResponseWriter, r *http.Request) {
	id, ok := uploadID(w, r)
	if !ok {
		return
	}
	if err := m.AddRef(r.Context(), id); err != nil {
		m.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleRemoveRef(w http.ResponseWriter, r *http.Request) {
	id, ok := uploadID(w, r)
	if !ok {
		return
	}
	if err := m.RemoveRef(r.Context(), id); err != nil {
		m.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func uploadID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := IDFromName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func (m *Manager) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		m.logger.Error("upload request failed", "path", r.URL.Path, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, board.ErrTooManyFiles),
		errors.Is(err, board.ErrKindNotAllowed),
		errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInUse):
		return http.StatusConflict
	case errors.Is(err, ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
