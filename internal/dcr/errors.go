// internal/dcr/errors.go
package dcr

import (
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindInvalidStatement: malformed, unsigned, or wrong-issuer token.
	// Client error, never retried.
	KindInvalidStatement Kind = iota
	// KindExpired: token past its expiry.
	KindExpired
	// KindUnapproved: token verified but the account or order is not
	// authorized yet; may self-heal once procurement events catch up.
	KindUnapproved
	// KindServerError: encryption, decryption, or storage failure.
	KindServerError
)

// Error is the single error type Register returns, so handlers can always
// recover the wire code and status.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.cause)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the fixed wire error code expected by the vendor.
func (e *Error) Code() string {
	switch e.Kind {
	case KindUnapproved:
		return "unapproved_software_statement"
	case KindServerError:
		return "server_error"
	default:
		return "invalid_software_statement"
	}
}

func (e *Error) HTTPStatus() int {
	if e.Kind == KindServerError {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func errf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}
