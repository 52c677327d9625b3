package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between "skip and continue" and
// "abort and surface" without matching on message text.
type Kind int

const (
	KindUnknown     Kind = iota
	KindNetwork          // timeout or connection failure; manual retry is safe
	KindAuth             // token invalid/expired or refresh failed; re-login required
	KindValidation       // server returned a shape the client cannot parse
	KindServer           // explicit application-level failure message from the backend
	KindPartialSync      // one deck failed inside a batch; skipped
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindPartialSync:
		return "partial_sync"
	default:
		return "unknown"
	}
}

// Kind sentinels; errors.Is(err, ErrAuth) matches any *Error of KindAuth.
var (
	ErrNetwork     = &Error{Kind: KindNetwork, Msg: "network error"}
	ErrAuth        = &Error{Kind: KindAuth, Msg: "authentication error"}
	ErrValidation  = &Error{Kind: KindValidation, Msg: "validation error"}
	ErrServer      = &Error{Kind: KindServer, Msg: "server error"}
	ErrPartialSync = &Error{Kind: KindPartialSync, Msg: "partial sync error"}
)

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Op     string // operation, e.g. "POST /addon-sync-progress"
	Msg    string // message safe to show verbatim
	DeckID string // set for KindPartialSync
	Err    error  // underlying cause
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.DeckID != "":
		return fmt.Sprintf("%s: deck %s: %s", e.Op, e.DeckID, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.DeckID != "":
		return fmt.Sprintf("deck %s: %s", e.DeckID, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.DeckID == "" && t.Err == nil && t.Kind == e.Kind
}

// Network builds a KindNetwork error.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Msg: "network error: " + causeText(err), Err: err}
}

// Auth builds a KindAuth error.
func Auth(op, msg string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Msg: msg, Err: err}
}

// Validation builds a KindValidation error.
func Validation(op, msg string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Err: err}
}

// Server builds a KindServer error carrying the backend's message verbatim.
func Server(op, msg string) *Error {
	return &Error{Kind: KindServer, Op: op, Msg: msg}
}

// PartialSync builds a KindPartialSync error for one deck.
func PartialSync(deckID string, err error) *Error {
	return &Error{Kind: KindPartialSync, DeckID: deckID, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message of a classified error, or err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Hint tells the user what to do about err.
func Hint(err error) string {
	switch KindOf(err) {
	case KindAuth:
		return "please log in again"
	case KindNetwork:
		return "check your connection and retry"
	case KindServer:
		return "retry later"
	case KindValidation:
		return "unexpected server response; please report this"
	default:
		return ""
	}
}

func causeText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
