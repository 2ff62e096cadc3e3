package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v and runs struct
// validation. It returns an error for missing/incorrect content type,
// malformed JSON, or a failed validation rule.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError renders the first failing rule as a ValidationError.
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &domain.ValidationError{Message: err.Error()}
	}
	fe := errs[0]
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	switch fe.Tag() {
	case "required":
		return &domain.ValidationError{Message: field + " is required"}
	case "max":
		return &domain.ValidationError{Message: fmt.Sprintf("%s must be at most %s", field, fe.Param())}
	}
	return &domain.ValidationError{Message: field + " is invalid"}
}

// writeParseError writes a 400 for a ParseJSON failure.
func writeParseError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		WriteError(w, http.StatusBadRequest, "validation_error", ve.Message)
		return
	}
	WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

// parseAmount decodes a 7-decimal amount field.
func parseAmount(field, v string) (int64, error) {
	amount, err := domain.ParseAmount(v)
	if err != nil {
		return 0, &domain.ValidationError{Message: field + ": " + err.Error()}
	}
	return amount, nil
}

// tradeIDParam reads the {trade_id} path parameter.
func tradeIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "trade_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &domain.ValidationError{Message: "trade_id must be a positive integer"}
	}
	return id, nil
}

// Status groups for domain errors.
var (
	forbiddenErrors = []error{domain.ErrNotOwner, domain.ErrNotBuyer, domain.ErrNotSeller}
	notFoundErrors  = []error{
		domain.ErrTradeNotFound, domain.ErrNotRegistered, domain.ErrWebhookNotFound,
		domain.ErrPurchaseOrderNotFound, domain.ErrCustomerInvoiceNotFound,
		domain.ErrWarehouseReceiptNotFound, domain.ErrVLEIDocumentsNotFound,
	}
	conflictErrors = []error{domain.ErrAlreadyRegistered, domain.ErrNameTaken}
)

// mapError maps domain errors to HTTP responses. The error code is the
// sentinel's text.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, err.Error(), "Caller is not authorized for this operation")
	case isAny(err, forbiddenErrors):
		WriteError(w, http.StatusForbidden, err.Error(), "Caller does not hold the required role")
	case isAny(err, notFoundErrors):
		WriteError(w, http.StatusNotFound, err.Error(), "Resource not found")
	case isAny(err, conflictErrors):
		WriteError(w, http.StatusConflict, err.Error(), "Resource already exists")
	case errors.Is(err, store.ErrNotInitialized):
		WriteError(w, http.StatusServiceUnavailable, "not_initialized", "Ledger has not been initialized")
	case domain.IsDomainError(err):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "Operation rejected")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
