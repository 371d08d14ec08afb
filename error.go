// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane

import "fmt"

// Kind classifies an [Error]. The zero Kind, KindSuccess, denotes the
// absence of an error.
type Kind int

const (
	KindSuccess Kind = iota
	KindChannelClosed
	KindConnectionClosed
	KindEOF
	KindShortRead
	KindShortWrite
	KindSystemError
	KindProtocolError
	KindMailboxFull
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindChannelClosed:
		return "channel closed"
	case KindConnectionClosed:
		return "connection closed"
	case KindEOF:
		return "eof"
	case KindShortRead:
		return "short read"
	case KindShortWrite:
		return "short write"
	case KindSystemError:
		return "system error"
	case KindProtocolError:
		return "protocol error"
	case KindMailboxFull:
		return "mailbox full"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// An Error is a tagged value carrying a [Kind] plus whatever structured
// payload is relevant to that kind. The zero Error is [Success]: once a
// non-Success Error is observed on an object it is sticky, and every
// subsequent operation on that object completes with the same value.
type Error struct {
	Kind Kind

	// Populated for KindShortRead and KindShortWrite.
	Expected, Got int

	// Populated for KindSystemError.
	Subsystem string
	Errno     error

	// Populated for KindProtocolError and wrapped causes in general.
	Detail string
}

// Success is the zero Error, representing no failure.
var Success = Error{}

// IsSuccess reports whether e is the zero value.
func (e Error) IsSuccess() bool { return e.Kind == KindSuccess }

// Error implements the error interface so an Error can be returned or
// wrapped anywhere idiomatic Go expects one.
func (e Error) Error() string {
	switch e.Kind {
	case KindSuccess:
		return "success"
	case KindShortRead, KindShortWrite:
		return fmt.Sprintf("%s: expected %d, got %d", e.Kind, e.Expected, e.Got)
	case KindSystemError:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Subsystem, e.Errno)
	case KindProtocolError:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
		}
		return e.Kind.String()
	default:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
		}
		return e.Kind.String()
	}
}

// Unwrap exposes the underlying system error, if any, so callers can use
// errors.Is/errors.As against it (e.g. against io.EOF or syscall.Errno).
func (e Error) Unwrap() error { return e.Errno }

// ChannelClosed reports that a channel or its context was explicitly closed.
func ChannelClosed() Error { return Error{Kind: KindChannelClosed} }

// ConnectionClosed reports that the underlying transport connection closed,
// gracefully or otherwise, while operations were outstanding.
func ConnectionClosed() Error { return Error{Kind: KindConnectionClosed} }

// EOFError reports a clean end-of-stream with no bytes consumed.
func EOFError() Error { return Error{Kind: KindEOF} }

// ShortRead reports that a read completed with fewer bytes than requested.
func ShortRead(expected, got int) Error {
	return Error{Kind: KindShortRead, Expected: expected, Got: got}
}

// ShortWrite reports that a write completed with fewer bytes than requested.
func ShortWrite(expected, got int) Error {
	return Error{Kind: KindShortWrite, Expected: expected, Got: got}
}

// SystemError wraps an OS-level failure attributed to subsystem (e.g. "cma",
// "epoll", "futex").
func SystemError(subsystem string, err error) Error {
	return Error{Kind: KindSystemError, Subsystem: subsystem, Errno: err}
}

// ProtocolError reports a fatal violation of the wire protocol, such as a
// Request or Reply referencing an unknown operation id.
func ProtocolError(detail string) Error {
	return Error{Kind: KindProtocolError, Detail: detail}
}

// MailboxFull reports that a bounded work queue (e.g. the CMA context's
// copy-request mailbox) rejected a submission because it was at capacity.
func MailboxFull(detail string) Error {
	return Error{Kind: KindMailboxFull, Detail: detail}
}

// FirstError returns cur if it is already non-Success (first-error-wins),
// otherwise it returns next. This is the sticky-error merge rule used by
// every component that owns an error_ field.
func FirstError(cur, next Error) Error {
	if !cur.IsSuccess() {
		return cur
	}
	return next
}
