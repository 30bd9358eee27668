package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/williamsbolu/natours/internal/domain"
)

// decodeJSON reads the request body into v. Malformed bodies become validation errors.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.ErrValidation, "Request body is required")
		}
		return domain.WrapError(domain.ErrValidation, "Invalid JSON body", err)
	}
	return nil
}
