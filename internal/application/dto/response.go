package dto

import (
	"time"

	"whatsam/internal/domain/entity"
)

// Response is the uniform API envelope.
type Response[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries a machine code plus a human message.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// NewSuccessResponse wraps data in the success envelope.
func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

// NewErrorResponse wraps an error in the envelope.
func NewErrorResponse[T any](code, message string, details map[string]string) Response[T] {
	return Response[T]{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	}
}

// SessionResponse is the status snapshot returned by the session routes.
type SessionResponse struct {
	entity.Snapshot
	QRImage string `json:"qrImage,omitempty"` // base64 PNG when pairing
}

// NewSessionResponse builds a session response from a snapshot.
func NewSessionResponse(snap entity.Snapshot) SessionResponse {
	return SessionResponse{Snapshot: snap}
}

// QRResponse is the dedicated QR endpoint payload.
type QRResponse struct {
	SessionID string    `json:"sessionId"`
	QRCode    string    `json:"qrCode"`
	QRImage   string    `json:"qrImage,omitempty"`
	Attempt   int       `json:"attempt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BulkSendResponse partitions a bulk request into per-index results and
// errors.
type BulkSendResponse struct {
	Results []entity.BulkSendItem `json:"results"`
	Errors  []entity.BulkSendItem `json:"errors"`
	Total   int                   `json:"total"`
}
