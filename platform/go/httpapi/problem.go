// Package httpapi holds the small HTTP response helpers shared by handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs returned by the API.
const (
	ProblemTypeValidation = "https://craftline.app/problems/validation-error"
	ProblemTypeNotFound   = "https://craftline.app/problems/not-found"
	ProblemTypeConflict   = "https://craftline.app/problems/conflict"
	ProblemTypeInternal   = "https://craftline.app/problems/internal-error"
)

// Problem is an RFC 7807 problem-details body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status"`
	// Step names the failed phase of a multi-step administrative operation
	// (rotation, export) so the operator can verify state manually.
	Step string `json:"step,omitempty"`
}

// WriteProblem serializes a Problem with the proper content type.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
