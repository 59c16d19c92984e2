// Package apperror defines the single error type that crosses layer
// boundaries. Domain services return *AppError for every expected failure;
// the HTTP layer maps Code and HTTPStatus onto the response and hides the
// wrapped cause.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Clients switch on these, so they never change once published.
const (
	CodeInternal  = "INTERNAL_ERROR"
	CodeIntegrity = "INTEGRITY_ERROR" // ledger or index drift, never retried

	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidTransition = "INVALID_TRANSITION"

	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeOverShipment      = "OVER_SHIPMENT"

	CodeNotFound = "NOT_FOUND"

	CodeConflict               = "CONFLICT"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeIdempotency            = "IDEMPOTENCY_CONFLICT"
	CodeImmutableDocument      = "IMMUTABLE_DOCUMENT"
	CodeAlreadyConverted       = "ALREADY_CONVERTED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

var statusOf = map[string]int{
	CodeInternal:               http.StatusInternalServerError,
	CodeIntegrity:              http.StatusInternalServerError,
	CodeValidation:             http.StatusBadRequest,
	CodeInvalidTransition:      http.StatusUnprocessableEntity,
	CodeInsufficientStock:      http.StatusUnprocessableEntity,
	CodeOverShipment:           http.StatusUnprocessableEntity,
	CodeNotFound:               http.StatusNotFound,
	CodeConflict:               http.StatusConflict,
	CodeDuplicate:              http.StatusConflict,
	CodeIdempotency:            http.StatusConflict,
	CodeImmutableDocument:      http.StatusConflict,
	CodeAlreadyConverted:       http.StatusConflict,
	CodeConcurrentModification: http.StatusConflict,
}

// AppError is a classified failure with client-safe details.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	HTTPStatus int   `json:"-"`
	Err        error `json:"-"` // logged, never serialized
}

func newError(code, message string, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Details:    details,
		HTTPStatus: statusOf[code],
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets one detail and returns e for chaining.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error. It is logged by the error
// middleware and never reaches the client.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func NewValidation(message string) *AppError {
	return newError(CodeValidation, message, nil)
}

func NewNotFound(entity string, id any) *AppError {
	return newError(CodeNotFound, entity+" not found", map[string]any{"entity": entity, "id": id})
}

// NewInvalidTransition reports a lifecycle move the document's state
// machine does not allow. IsValidation treats it as a validation failure.
func NewInvalidTransition(entity, from, to string) *AppError {
	return newError(CodeInvalidTransition,
		fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		map[string]any{"entity": entity, "from": from, "to": to})
}

// NewInsufficientStock reports a ledger movement that would take a location
// below zero. Quantities are given in their decimal form.
func NewInsufficientStock(productID string, requested, available string) *AppError {
	return newError(CodeInsufficientStock, "Insufficient stock", map[string]any{
		"product_id": productID,
		"requested":  requested,
		"available":  available,
	})
}

// NewOverShipment reports a tranche that would ship more than is reserved.
func NewOverShipment(lineID string, shipped, reserved string) *AppError {
	return newError(CodeOverShipment, "Shipped quantity would exceed reserved quantity", map[string]any{
		"line_id":  lineID,
		"shipped":  shipped,
		"reserved": reserved,
	})
}

// NewImmutableDocument reports an edit of a document in a terminal status.
func NewImmutableDocument(entity string, id any, status string) *AppError {
	return newError(CodeImmutableDocument,
		fmt.Sprintf("%s is %s and can no longer be modified", entity, status),
		map[string]any{"entity": entity, "id": id, "status": status})
}

func NewAlreadyConverted(quotationID, salesOrderID any) *AppError {
	return newError(CodeAlreadyConverted, "Quotation has already been converted",
		map[string]any{"quotation_id": quotationID, "sales_order_id": salesOrderID})
}

// NewIntegrity reports persisted state that cannot happen, such as a stored
// balance disagreeing with the ledger.
func NewIntegrity(message string) *AppError {
	return newError(CodeIntegrity, message, nil)
}

func NewConcurrentModification(entity string, id any) *AppError {
	return newError(CodeConcurrentModification,
		"Record was modified by another user. Please refresh and try again.",
		map[string]any{"entity": entity, "id": id})
}

// NewInternal wraps an unexpected failure. Only the code reaches clients.
func NewInternal(err error) *AppError {
	e := newError(CodeInternal, "Internal server error", nil)
	e.Err = err
	return e
}

// NewIdempotencyConflict is returned while another request holds the key.
func NewIdempotencyConflict(key string) *AppError {
	return newError(CodeIdempotency, "Operation already in progress or completed",
		map[string]any{"idempotency_key": key})
}

// NewIdempotencyMismatch is returned when a key is reused by a different
// actor, route or request body.
func NewIdempotencyMismatch(key string) *AppError {
	return newError(CodeIdempotency, "Idempotency key mismatch",
		map[string]any{"idempotency_key": key})
}

func NewConflict(message string) *AppError {
	return newError(CodeConflict, message, nil)
}

func NewDuplicate(entity, field, value string) *AppError {
	return newError(CodeDuplicate,
		fmt.Sprintf("%s with this %s already exists", entity, field),
		map[string]any{"entity": entity, "field": field, "value": value})
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError finds the first *AppError in the chain of err.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the status for err; unclassified errors are 500.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func IsNotFound(err error) bool               { return hasCode(err, CodeNotFound) }
func IsConcurrentModification(err error) bool { return hasCode(err, CodeConcurrentModification) }
func IsImmutable(err error) bool              { return hasCode(err, CodeImmutableDocument) }
func IsAlreadyConverted(err error) bool       { return hasCode(err, CodeAlreadyConverted) }
func IsInsufficientStock(err error) bool      { return hasCode(err, CodeInsufficientStock) }
func IsOverShipment(err error) bool           { return hasCode(err, CodeOverShipment) }
func IsIntegrity(err error) bool              { return hasCode(err, CodeIntegrity) }

// IsValidation also matches invalid status transitions.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation) || hasCode(err, CodeInvalidTransition)
}

func hasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
