package gt

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide how to react.
type Kind int

const (
	KindStorage       Kind = iota + 1 // local I/O fault
	KindNotFound                      // referenced entity missing
	KindAuth                          // remote session invalid
	KindNetwork                       // transient, retried by the next natural trigger
	KindRemote                        // remote rejected the request
	KindInvalidFormat                 // import or migration payload unparseable
	KindMediaMissing                  // staged media no longer resolvable
	KindValidation                    // entity failed field validation
)

func (k Kind) String() string {
	switch k {
	case KindStorage:
		return "storage error"
	case KindNotFound:
		return "not found"
	case KindAuth:
		return "authentication error"
	case KindNetwork:
		return "network error"
	case KindRemote:
		return "remote error"
	case KindInvalidFormat:
		return "invalid format"
	case KindMediaMissing:
		return "media missing"
	case KindValidation:
		return "validation failed"
	default:
		return "unknown error"
	}
}

// Sentinel errors, one per Kind. Test with errors.Is:
//
//	if errors.Is(err, gt.ErrNotFound) {
//	    // stale UI state, treat as a no-op
//	}
var (
	ErrStorage       = &Error{Kind: KindStorage}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrNetwork       = &Error{Kind: KindNetwork}
	ErrRemote        = &Error{Kind: KindRemote}
	ErrInvalidFormat = &Error{Kind: KindInvalidFormat}
	ErrMediaMissing  = &Error{Kind: KindMediaMissing}
	ErrValidation    = &Error{Kind: KindValidation}
)

// Error carries a Kind, the operation that failed, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error. A nil err still produces an error of the given kind.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so wrapped errors compare equal
// to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
