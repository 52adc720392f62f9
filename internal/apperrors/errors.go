package apperrors

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// MaxBodyBytes caps the JSON request bodies DecodeJSON will read.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the JSON body written for every failed API request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// SuccessResponse wraps every successful API payload.
type SuccessResponse struct {
	RequestID string `json:"request_id"`
	Data      any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone; the client most likely hung up.
		log.Debug().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("Failed to write response body")
	}
}

// WriteError writes an error response in the standard envelope format
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeJSON(w, r, statusCode, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: GetRequestID(r.Context()),
	}})
}

// WriteSuccess writes a success response in the standard envelope format
func WriteSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	writeJSON(w, r, statusCode, SuccessResponse{
		RequestID: GetRequestID(r.Context()),
		Data:      data,
	})
}

func writeKind(w http.ResponseWriter, r *http.Request, k Kind, message string) {
	WriteError(w, r, k.Status(), k.String(), message)
}

func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeKind(w, r, KindValidation, message)
}

func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeKind(w, r, KindAuthentication, message)
}

func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	writeKind(w, r, KindAuthorization, message)
}

func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeKind(w, r, KindNotFound, message)
}

func WriteConflict(w http.ResponseWriter, r *http.Request, message string) {
	writeKind(w, r, KindConflict, message)
}

func WriteGone(w http.ResponseWriter, r *http.Request, message string) {
	writeKind(w, r, KindGone, message)
}

func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeKind(w, r, KindUnexpected, message)
}

// WriteTooManyRequests is used by the rate limiters.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusTooManyRequests, "too_many_requests", message)
}

// WriteServiceUnavailable is used by the readiness probe.
func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", message)
}

// DecodeJSON decodes at most MaxBodyBytes of the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(dst)
}
