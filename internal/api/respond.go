package api

import (
	"encoding/json"
	"net/http"
)

// Codes shared by every handler package.
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
)

type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Success: false, Message: message})
}

// RespondWithCode adds a machine-readable error code to the error body.
func RespondWithCode(w http.ResponseWriter, status int, code, message string, fields map[string]string) {
	RespondWithJSON(w, status, ErrorResponse{Success: false, Error: code, Message: message, Fields: fields})
}
