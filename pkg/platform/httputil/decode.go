package httputil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dErrors "didgate/pkg/domain-errors"
	"didgate/pkg/requestcontext"
)

// FormFile is an uploaded multipart file read fully into memory.
type FormFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ParseMultipart parses a multipart/form-data body, keeping up to maxMemory
// bytes in memory. On failure it writes the error response and returns false.
//
// Usage:
//
//	if !httputil.ParseMultipart(w, r, maxMemory, h.logger) {
//	    return
//	}
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxMemory int64, logger *slog.Logger) bool {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		ctx := r.Context()
		logger.WarnContext(ctx, "failed to parse multipart body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error":             "payload_too_large",
				"error_description": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart/form-data body"))
		return false
	}
	return true
}

// ReadFormFile reads the named file field of a parsed multipart form. It
// returns nil, nil when the field is absent.
func ReadFormFile(r *http.Request, field string, limit int64) (*FormFile, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable "+field+" upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable "+field+" upload")
	}
	if int64(len(data)) > limit {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds %d bytes", field, limit))
	}
	return &FormFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// PrepareRequest normalizes then validates req when it supports either.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
