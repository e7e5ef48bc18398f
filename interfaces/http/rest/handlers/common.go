package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "swiftbase/pkg/errors"
)

// decodeJSON reads the request body into dst, translating decode failures
// into the error taxonomy.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return apperrors.NewPayloadTooLarge("request body exceeds the 10 MiB limit")
	}
	if errors.Is(err, io.EOF) {
		return apperrors.NewInvalidInput("request body is required")
	}
	return apperrors.NewInvalidInput("malformed JSON body: " + err.Error())
}
