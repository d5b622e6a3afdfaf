// Package mailbox manages the authenticated IMAP connection used by an
// archiver run: listing message references, fetching raw content, and
// reconnecting when the connection fails or gets too old.
package mailbox

import (
	"context"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// MessageRef identifies one remote message within the current session.
// MessageID carries the envelope Message-ID header when the server
// reported one; it powers an approximate pre-fetch dedup filter, while
// the post-decode check remains authoritative.
type MessageRef struct {
	UID       imap.UID
	MessageID string
}

// Options configures a Session.
type Options struct {
	// Server is the IMAP host, optionally with a ":port" suffix.
	// Port 993 (implicit TLS) is assumed when absent.
	Server  string
	User    string
	Pass    string
	Mailbox string

	// ReconnectEvery closes and reopens the connection after this many
	// fetches, regardless of errors. Servers silently drop long-lived
	// connections. Zero disables proactive cycling.
	ReconnectEvery int
}

// Session is an authenticated connection to one mailbox. It is not
// safe for concurrent use; the archiver is strictly sequential.
type Session struct {
	opts   Options
	logger *slog.Logger

	client      *imapclient.Client
	uidValidity uint32
	numMessages uint32
	fetches     int
}

// Open authenticates against the configured server and selects the
// mailbox. It fails with a ConnectionError when the network is
// unreachable, an AuthError when credentials are rejected, and a
// MailboxError when the mailbox does not exist.
func Open(opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{opts: opts, logger: logger}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) connect() error {
	addr := s.opts.Server
	if !strings.Contains(addr, ":") {
		addr += ":993"
	}

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return &ConnectionError{Op: "dial " + addr, Err: err}
	}

	if err := client.Login(s.opts.User, s.opts.Pass).Wait(); err != nil {
		_ = client.Close()
		// Only a status response from the server means the credentials
		// were rejected; anything else is the transport dying mid-login.
		if !serverRejection(err) {
			return &ConnectionError{Op: "login", Err: err}
		}
		return &AuthError{User: s.opts.User, Err: err}
	}

	sel, err := client.Select(s.opts.Mailbox, nil).Wait()
	if err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		if !serverRejection(err) {
			return &ConnectionError{Op: "select " + s.opts.Mailbox, Err: err}
		}
		return &MailboxError{Mailbox: s.opts.Mailbox, Err: err}
	}

	s.client = client
	s.numMessages = sel.NumMessages
	s.fetches = 0
	staleRefs := s.uidValidity != 0 && sel.UIDValidity != s.uidValidity
	s.uidValidity = sel.UIDValidity

	s.logger.Debug("imap session established",
		"server", addr, "mailbox", s.opts.Mailbox,
		"messages", sel.NumMessages, "uidvalidity", sel.UIDValidity)

	if staleRefs {
		return ErrStaleRefs
	}
	return nil
}

// ListAll returns a reference for every message currently visible in
// the mailbox, in server order, with the envelope Message-ID attached
// where available.
func (s *Session) ListAll(ctx context.Context) ([]MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.numMessages == 0 {
		return nil, nil
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(1, 0) // 1:*

	fetchCmd := s.client.Fetch(seqSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
	})
	defer fetchCmd.Close()

	var refs []MessageRef
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		ref := MessageRef{UID: buf.UID}
		if buf.Envelope != nil {
			ref.MessageID = buf.Envelope.MessageID
		}
		refs = append(refs, ref)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, &ConnectionError{Op: "list", Err: err}
	}

	return refs, nil
}

// FetchRaw returns the complete raw message for one reference. It
// cycles the connection proactively every ReconnectEvery fetches. A
// vanished message yields a NotFoundError; transport failures yield a
// ConnectionError.
func (s *Session) FetchRaw(ctx context.Context, ref MessageRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.opts.ReconnectEvery > 0 && s.fetches > 0 && s.fetches%s.opts.ReconnectEvery == 0 {
		s.logger.Debug("cycling imap connection", "fetches", s.fetches)
		s.closeClient()
		if err := s.connect(); err != nil {
			return nil, err
		}
	}
	s.fetches++

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(ref.UID), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, &ConnectionError{Op: "fetch", Err: err}
		}
		return nil, &NotFoundError{UID: ref.UID}
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, &ConnectionError{Op: "fetch", Err: err}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, &ConnectionError{Op: "fetch", Err: err}
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, &NotFoundError{UID: ref.UID}
	}
	return raw, nil
}

// Reopen discards the current connection and establishes a fresh one.
// It returns ErrStaleRefs when the reconnect invalidated previously
// listed references, in which case the session is usable but the
// caller must re-list before fetching.
func (s *Session) Reopen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.closeClient()
	return s.connect()
}

// Close releases the connection. It is idempotent; failures during
// close are logged, never propagated.
func (s *Session) Close() error {
	s.closeClient()
	return nil
}

func (s *Session) closeClient() {
	if s.client == nil {
		return
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout failed", "err", err)
	}
	if err := s.client.Close(); err != nil {
		s.logger.Debug("imap close failed", "err", err)
	}
	s.client = nil
}
