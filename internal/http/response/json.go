package response

import (
	"encoding/json"
	"net/http"

	"github.com/williamsbolu/natours/pkg/logger"
)

// Envelope is the success body: {"status":"success", ...}.
type Envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func Success(w http.ResponseWriter, statusCode int, data any) {
	WriteJSON(w, statusCode, Envelope{Status: "success", Data: data})
}

// List writes data with a results count.
func List(w http.ResponseWriter, n int, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Status: "success", Results: &n, Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
