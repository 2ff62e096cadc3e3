package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.

// Registry errors. The buyer and seller variants wrap the generic error so
// callers can match either with errors.Is.
var (
	ErrNotRegistered     = errors.New("not_registered")
	ErrAlreadyRegistered = errors.New("already_registered")
	ErrInactive          = errors.New("inactive")
	ErrNameTaken         = errors.New("name_taken")

	ErrBuyerNotRegistered      = refine("buyer_not_registered", ErrNotRegistered)
	ErrSellerNotRegistered     = refine("seller_not_registered", ErrNotRegistered)
	ErrBuyerAlreadyRegistered  = refine("buyer_already_registered", ErrAlreadyRegistered)
	ErrSellerAlreadyRegistered = refine("seller_already_registered", ErrAlreadyRegistered)
	ErrBuyerInactive           = refine("buyer_inactive", ErrInactive)
	ErrSellerInactive          = refine("seller_inactive", ErrInactive)
	ErrBuyerNameTaken          = refine("buyer_name_taken", ErrNameTaken)
	ErrSellerNameTaken         = refine("seller_name_taken", ErrNameTaken)
)

// Authorization errors.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotOwner     = errors.New("not_owner")
	ErrNotBuyer     = errors.New("not_buyer")
	ErrNotSeller    = errors.New("not_seller")
)

// Trade state errors.
var (
	ErrInvalidTradeState   = errors.New("invalid_trade_state")
	ErrTradeNotFound       = errors.New("trade_not_found")
	ErrTradeNotFulfilled   = refine("trade_not_fulfilled", ErrInvalidTradeState)
	ErrBuyerCannotBeSeller = errors.New("buyer_cannot_be_seller")
)

// Escrow errors.
var (
	ErrInsufficientEscrowFunding = errors.New("insufficient_escrow_funding")
	ErrEscrowAlreadyFunded       = errors.New("escrow_already_funded")
	ErrEscrowNotFunded           = errors.New("escrow_not_funded")
)

// Document errors.
var (
	ErrPurchaseOrderNotFound    = errors.New("purchase_order_not_found")
	ErrCustomerInvoiceNotFound  = errors.New("customer_invoice_not_found")
	ErrWarehouseReceiptNotFound = errors.New("warehouse_receipt_not_found")
	ErrVLEIDocumentsNotFound    = errors.New("vlei_documents_not_found")
	ErrBuyerVLEINotValidated    = errors.New("buyer_vlei_not_validated")
)

// Matching errors.
var (
	ErrDescriptionMismatch     = errors.New("description_mismatch")
	ErrQuantityVarianceTooHigh = errors.New("quantity_variance_too_high")
	ErrPriceVarianceTooHigh    = errors.New("price_variance_too_high")
)

// General errors.
var (
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidFeeRate = errors.New("invalid_fee_rate")
	ErrOverflow       = errors.New("arithmetic_overflow")
	ErrDivisionByZero = errors.New("division_by_zero")
)

// Notification errors.
var ErrWebhookNotFound = errors.New("webhook_not_found")

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// refinedError is a more specific sentinel that still matches its parent
// with errors.Is.
type refinedError struct {
	code   string
	parent error
}

func refine(code string, parent error) error {
	return &refinedError{code: code, parent: parent}
}

func (e *refinedError) Error() string { return e.code }

func (e *refinedError) Unwrap() error { return e.parent }

var domainErrors = []error{
	ErrNotRegistered, ErrAlreadyRegistered, ErrInactive, ErrNameTaken,
	ErrUnauthorized, ErrNotOwner, ErrNotBuyer, ErrNotSeller,
	ErrInvalidTradeState, ErrTradeNotFound, ErrBuyerCannotBeSeller,
	ErrInsufficientEscrowFunding, ErrEscrowAlreadyFunded, ErrEscrowNotFunded,
	ErrPurchaseOrderNotFound, ErrCustomerInvoiceNotFound, ErrWarehouseReceiptNotFound,
	ErrVLEIDocumentsNotFound, ErrBuyerVLEINotValidated,
	ErrDescriptionMismatch, ErrQuantityVarianceTooHigh, ErrPriceVarianceTooHigh,
	ErrInvalidAmount, ErrInvalidFeeRate, ErrOverflow, ErrDivisionByZero,
	ErrWebhookNotFound,
}

// IsDomainError reports whether err is one of the sentinels above or a
// ValidationError, as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
