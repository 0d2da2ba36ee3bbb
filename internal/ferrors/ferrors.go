// Package ferrors defines the typed error kinds visible at the edges of
// the communication core (spec §7): decode, protocol, permission,
// transport, timeout, and application errors. Construction mirrors the
// teacher's cmn/cos typed-error style: one Error struct carrying a Kind
// plus a variadic-format constructor, with github.com/pkg/errors used for
// wrapping at layer boundaries.
package ferrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error per spec §7.
type Kind int

const (
	Decode Kind = iota
	Protocol
	Permission
	Transport
	Timeout
	Application
)

func (k Kind) String() string {
	switch k {
	case Decode:
		return "decode"
	case Protocol:
		return "protocol"
	case Permission:
		return "permission"
	case Transport:
		return "transport"
	case Timeout:
		return "timeout"
	case Application:
		return "application"
	default:
		return "unknown"
	}
}

// Error is the error type returned across package boundaries in this
// module. Errno carries a numeric code for the application kind
// (surfaced in response envelopes); Text is the human-readable message.
type Error struct {
	Kind  Kind
	Errno int32
	Text  string
	cause error
}

func (e *Error) Error() string {
	if e.Text == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, errno int32, format string, a ...any) *Error {
	return &Error{Kind: kind, Errno: errno, Text: fmt.Sprintf(format, a...)}
}

// Wrap attaches kind/errno to an existing error, preserving it as the
// cause (retrievable via errors.Unwrap / errors.Is).
func Wrap(kind Kind, errno int32, cause error, format string, a ...any) *Error {
	return &Error{Kind: kind, Errno: errno, Text: fmt.Sprintf(format, a...), cause: errors.WithStack(cause)}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// Sentinel decode errors, reused across the codec.
var (
	ErrBadMagic     = New(Decode, 0, "bad magic byte")
	ErrBadVersion   = New(Decode, 0, "unsupported protocol version")
	ErrTruncated    = New(Decode, 0, "truncated frame")
	ErrNoMatchResp  = New(Protocol, 0, "matchtag=0: no response expected")
	ErrBothFlags    = New(Protocol, 0, "streaming and no-response flags are mutually exclusive")
)

// ENOSYS is the errno value a handle stamps on its auto-response when an
// inbound request matches no dispatch entry (spec §4.4).
const ENOSYS uint32 = 38

// Errs aggregates multiple errors under one text, grounded on cmn/cos.Errs.
// The overlay errors subcommand does its own grouping and does not use it.
type Errs struct {
	errs []error
}

func (e *Errs) Add(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Len() int { return len(e.errs) }

func (e *Errs) Err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return e
}

func (e *Errs) Error() string {
	if len(e.errs) == 1 {
		return e.errs[0].Error()
	}
	s := fmt.Sprintf("%d errors:", len(e.errs))
	for _, err := range e.errs {
		s += " [" + err.Error() + "]"
	}
	return s
}
