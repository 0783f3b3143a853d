package checkout

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation           Code = "validation_error"
	CodeProductNotFound      Code = "product_not_found"
	CodePreparationFailed    Code = "payment_preparation_failed"
	CodePaymentNotCompleted  Code = "payment_not_completed"
	CodeAmountMismatch       Code = "amount_mismatch"
	CodeCartChanged          Code = "cart_changed_since_payment"
	CodePaymentRequired      Code = "payment_required"
	CodeProcessorUnavailable Code = "payment_processor_unavailable"
	CodeOrderNotFound        Code = "order_not_found"
	CodeQuoteNotPayable      Code = "quote_not_payable"
)

// Error is a checkout failure the caller can act on. No order exists when one
// is returned.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodePreparationFailed:
		return http.StatusInternalServerError
	case CodeProcessorUnavailable:
		return http.StatusBadGateway
	case CodeOrderNotFound:
		return http.StatusNotFound
	case CodeQuoteNotPayable:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err is a checkout Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
