package util

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIError is the body of every non-2xx JSON response.
type APIError struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

var ErrBodyTooLarge = errors.New("request body too large")

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, msg, reqID string) {
	WriteJSON(w, status, APIError{Code: code, Message: msg, RequestID: reqID})
}

// WriteFieldError is WriteError for input problems tied to named fields.
func WriteFieldError(w http.ResponseWriter, status int, code, msg string, fields []string, reqID string) {
	WriteJSON(w, status, APIError{Code: code, Message: msg, Fields: fields, RequestID: reqID})
}

// DecodeJSON reads at most limit bytes of JSON into dst. Unknown fields are
// ignored. An oversized body yields ErrBodyTooLarge.
func DecodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return BodyError(err)
	}
	return nil
}

// BodyError maps the error from a size-limited body read to ErrBodyTooLarge
// when the limit was hit.
func BodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return ErrBodyTooLarge
	}
	return err
}
