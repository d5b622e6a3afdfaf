package mailbox

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// ErrStaleRefs reports that a reconnect changed the mailbox's
// UIDVALIDITY, so message references listed before the reconnect are
// no longer safe to fetch. The caller must re-list.
var ErrStaleRefs = errors.New("mailbox references invalidated by reconnect")

// ConnectionError is a transient transport failure. The archiver
// reopens the session and retries once; a second consecutive
// occurrence is fatal to the run.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or any error in its chain)
// is a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// AuthError means the server rejected the credentials. Fatal, no retry.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an
// AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// MailboxError means the configured mailbox could not be selected.
// Fatal, no retry.
type MailboxError struct {
	Mailbox string
	Err     error
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("selecting mailbox %q: %v", e.Mailbox, e.Err)
}

func (e *MailboxError) Unwrap() error { return e.Err }

// IsMailboxError reports whether err (or any error in its chain) is a
// MailboxError.
func IsMailboxError(err error) bool {
	var mbErr *MailboxError
	return errors.As(err, &mbErr)
}

// serverRejection reports whether err carries an IMAP status response,
// i.e. the server explicitly refused the command. A dropped connection
// during login or select produces a plain transport error instead and
// must stay retryable rather than being treated as a rejection.
func serverRejection(err error) bool {
	var respErr *imap.Error
	return errors.As(err, &respErr)
}

// NotFoundError means a message reference is no longer valid, e.g. the
// message was removed concurrently. Non-fatal: the archiver logs the
// reference and skips it.
type NotFoundError struct {
	UID imap.UID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message UID %d not found", e.UID)
}

// IsNotFoundError reports whether err (or any error in its chain) is a
// NotFoundError.
func IsNotFoundError(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}
