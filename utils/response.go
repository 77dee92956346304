package utils

import (
	"encoding/json"
	"net/http"
)

type M map[string]any

// Problem is the error body every handler writes.
type Problem struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func RespondWithError(w http.ResponseWriter, status int, msg string) {
	RespondWithJSON(w, status, Problem{Error: msg})
}

// RespondWithProblem writes an error with a machine readable code and,
// optionally, per-field messages.
func RespondWithProblem(w http.ResponseWriter, status int, code, msg string, fields map[string]string) {
	RespondWithJSON(w, status, Problem{Error: msg, Code: code, Fields: fields})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
