package orders

import (
	"errors"
	"strings"
)

var (
	ErrOrderCreationFailed   = errors.New("order creation failed")
	ErrCheckoutSessionFailed = errors.New("checkout session could not be created")
	ErrSignatureVerification = errors.New("webhook signature verification failed")
	ErrMissingCorrelation    = errors.New("webhook event carries no order id")
	ErrNotFound              = errors.New("order not found")
)

// ValidationError is a rejected order request. The caller has to correct the
// input before retrying.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
