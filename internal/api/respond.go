package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
	"github.com/Lllllllleong/solarleadcapture/internal/identity"
	"github.com/Lllllllleong/solarleadcapture/internal/models"
	"github.com/Lllllllleong/solarleadcapture/internal/services"
)

const (
	maxJSONBody = 1 << 20
	// Room for the largest allowed selection plus form overhead.
	maxUploadBody = (3 + 1) * documents.MaxFileSize
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status and public message for err.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	resp := models.ErrorResponse{Error: errs.PublicMessage(err)}

	var e *errs.Error
	if errors.As(err, &e) {
		resp.Fields = e.Fields
		switch e.Kind {
		case errs.AlreadyCompleted:
			resp.Redirect = services.CompletedRedirect
		case errs.Unauthorized:
			resp.Redirect = "/login"
		}
	}

	logCtx := s.logger.With("method", r.Method, "path", r.URL.Path, "status", status)
	if status >= http.StatusInternalServerError {
		logCtx.Error("Request failed.", "error", err)
	} else {
		logCtx.Warn("Request rejected.", "error", err)
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Newf(errs.TooLarge, "request body is too large")
		}
		return errs.New(errs.ValidationFailed, "invalid JSON body", err)
	}
	return nil
}

// ownerOf returns the signed-in user's id. Routes reaching it are behind
// RequireAuth.
func ownerOf(r *http.Request) string {
	id, _ := identity.FromContext(r.Context())
	return id.UserID
}

// readFiles loads the multipart files under field into memory.
func readFiles(w http.ResponseWriter, r *http.Request, field string) ([]documents.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errs.Newf(errs.TooLarge, "upload is too large")
		}
		return nil, errs.New(errs.ValidationFailed, "invalid multipart form", err)
	}
	var files []documents.File
	for _, fh := range r.MultipartForm.File[field] {
		f, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readFile(fh *multipart.FileHeader) (documents.File, error) {
	src, err := fh.Open()
	if err != nil {
		return documents.File{}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return documents.File{}, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}
	return documents.File{
		Name:      fh.Filename,
		Size:      fh.Size,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}
