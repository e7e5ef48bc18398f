package common

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apperrors "swiftbase/pkg/errors"
)

// APIVersion is the single version this server speaks.
const APIVersion = "1.0"

// APIResponse is the envelope every JSON endpoint produces.
type APIResponse struct {
	Success  bool       `json:"success"`
	Data     any        `json:"data,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`
	Metadata *MetaInfo  `json:"metadata,omitempty"`
}

// ErrorInfo carries the error half of the envelope.
type ErrorInfo struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// MetaInfo carries response metadata.
type MetaInfo struct {
	Timestamp  string          `json:"timestamp"`
	RequestID  string          `json:"requestId,omitempty"`
	Duration   string          `json:"duration,omitempty"`
	Version    string          `json:"version"`
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

// RespondData writes a success envelope.
func RespondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success:  status >= 200 && status < 300,
		Data:     data,
		Metadata: buildMeta(r, nil),
	})
}

// RespondWithSuccess writes an envelope with an explicit success flag. The
// bulk endpoint reports per-item failures this way without an error block.
func RespondWithSuccess(w http.ResponseWriter, r *http.Request, status int, success bool, data any) {
	writeJSON(w, status, APIResponse{
		Success:  success,
		Data:     data,
		Metadata: buildMeta(r, nil),
	})
}

// RespondPage writes a success envelope with pagination metadata.
func RespondPage(w http.ResponseWriter, r *http.Request, status int, data any, page *PaginationInfo) {
	writeJSON(w, status, APIResponse{
		Success:  true,
		Data:     data,
		Metadata: buildMeta(r, page),
	})
}

// RespondError translates an error into the envelope. Anything that is not an
// AppError is reported as an internal error without leaking its message.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		appErr = apperrors.NewInternal("internal server error")
	}
	writeJSON(w, appErr.HTTPStatus(), APIResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:      appErr.Code(),
			Message:   appErr.Message,
			Metadata:  appErr.Details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Metadata: buildMeta(r, nil),
	})
}

// RespondErrorCode writes an envelope for middleware-level failures that have
// no AppError, with an explicit status and code.
func RespondErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Metadata: buildMeta(r, nil),
	})
}

func buildMeta(r *http.Request, page *PaginationInfo) *MetaInfo {
	meta := &MetaInfo{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    APIVersion,
		Pagination: page,
	}
	if r != nil {
		meta.RequestID = chimiddleware.GetReqID(r.Context())
		if start, ok := StartTimeFromContext(r.Context()); ok {
			meta.Duration = time.Since(start).String()
		}
	}
	return meta
}

func writeJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
