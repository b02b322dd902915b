package api

import (
	"encoding/json"
	"net/http"
)

// APIError is an error that carries the HTTP status to answer with
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, status int) *APIError {
	return &APIError{
		Status:  status,
		Message: message,
	}
}

// envelope is the body of every JSON response
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// SendErrorResponse answers with err's status and message
func SendErrorResponse(w http.ResponseWriter, err *APIError) {
	writeJSON(w, err.Status, envelope{Status: "error", Message: err.Message})
}

// SendSuccessResponse answers 200 with data
func SendSuccessResponse(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}
