package checkout

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindPersistence Kind = iota
	KindNotFound
	KindEmpty
	KindInvalidAmount
	KindInvalidRequest
	KindPaymentFailed
	KindConflict
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindEmpty:
		return "empty"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInvalidRequest:
		return "invalid_request"
	case KindPaymentFailed:
		return "payment_failed"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	default:
		return "persistence"
	}
}

// Error is returned by every Service operation. Msg is safe to show to the
// caller; Err keeps the underlying cause for logs.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindPersistence for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

func newErr(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}
