package auth

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrAttachmentMissing means the flow resolved but its stored attachment
	// had already expired or been consumed.
	ErrAttachmentMissing = errors.New("flow attachment missing or expired")

	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrNonceMismatch  = errors.New("nonce mismatch")
	ErrMissingCode    = errors.New("missing code parameter")
)

// ExchangeError reports a failed call to the token endpoint.
type ExchangeError struct {
	Code        string
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("failed to exchange code: %s", e.Code)
	}
	return "failed to exchange code: " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// RevocationError reports a non-200 answer from the revocation endpoint.
type RevocationError struct {
	StatusCode int
	Body       string
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("revocation endpoint returned status %d", e.StatusCode)
}
