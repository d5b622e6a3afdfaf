// Package archive orchestrates one archiver run: it computes the
// pending set (remote minus already archived), fetches and decodes
// each pending message, and persists it with per-message durability so
// an interrupted run can always resume by simply re-running.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailarchive/internal/decode"
	"github.com/nhle/mailarchive/internal/extract"
	"github.com/nhle/mailarchive/internal/mailbox"
	"github.com/nhle/mailarchive/internal/model"
	"github.com/nhle/mailarchive/internal/store"
)

// Session is the mailbox access the archiver needs. *mailbox.Session
// implements it.
type Session interface {
	ListAll(ctx context.Context) ([]mailbox.MessageRef, error)
	FetchRaw(ctx context.Context, ref mailbox.MessageRef) ([]byte, error)
	Reopen(ctx context.Context) error
	Close() error
}

// Config bounds one archiver invocation.
type Config struct {
	// BatchSize caps how many pending references are processed before
	// the run stops. Callers re-run the archiver to continue.
	BatchSize int

	// Throttle is the pacing delay between messages.
	Throttle time.Duration
}

// Counts summarizes a run for reporting.
type Counts struct {
	// Discovered is the number of references visible on the server.
	Discovered int
	// Pending is the size of the pending set as of run start.
	Pending int
	// Processed counts references handled this run, archived or skipped.
	Processed int
	// Archived counts newly inserted records.
	Archived int
	// Skipped counts duplicates, vanished messages, and messages with
	// no usable identifier.
	Skipped int
}

// Archiver runs the fetch-decode-persist loop over one mailbox.
type Archiver struct {
	session Session
	store   store.Store
	cfg     Config
	logger  *slog.Logger

	// OnProgress, when set, is called after each processed reference
	// with the running count and the batch total.
	OnProgress func(processed, total int)
}

// New creates an Archiver. A zero BatchSize defaults to 500.
func New(session Session, st store.Store, cfg Config, logger *slog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{session: session, store: st, cfg: cfg, logger: logger}
}

// Run executes one bounded batch. Every successful insert is durable
// before the loop advances, so any abort leaves the store consistent
// and a re-run picks up where this one stopped.
func (a *Archiver) Run(ctx context.Context) (Counts, error) {
	var counts Counts
	log := a.logger.With("run", uuid.New().String())

	existing, err := a.store.ExistingMessageIDs(ctx)
	if err != nil {
		return counts, fmt.Errorf("loading existing message ids: %w", err)
	}
	log.Info("loaded archive snapshot", "existing", len(existing))

	refs, err := a.session.ListAll(ctx)
	if err != nil {
		return counts, fmt.Errorf("listing mailbox: %w", err)
	}
	counts.Discovered = len(refs)

	// seen tracks message ids inserted by this run, so a duplicate
	// appearing later in the same batch is skipped without relying on
	// the snapshot.
	seen := make(map[string]struct{})

	queue := pendingRefs(refs, existing, seen)
	counts.Pending = len(queue)
	if len(queue) > a.cfg.BatchSize {
		queue = queue[:a.cfg.BatchSize]
	}
	total := len(queue)
	log.Info("computed pending set",
		"discovered", counts.Discovered, "pending", counts.Pending, "batch", total)

	connFailed := false
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		ref := queue[0]

		raw, err := a.session.FetchRaw(ctx, ref)
		switch {
		case err == nil:
			connFailed = false

		case mailbox.IsNotFoundError(err):
			// The server answered, so the connection is fine.
			connFailed = false
			log.Warn("message vanished, skipping", "uid", ref.UID)
			queue = queue[1:]
			counts.Processed++
			counts.Skipped++
			a.progress(counts.Processed, total)
			continue

		case errors.Is(err, mailbox.ErrStaleRefs):
			log.Warn("references stale after reconnect, re-listing")
			queue, err = a.relist(ctx, existing, seen, total-counts.Processed)
			if err != nil {
				return counts, err
			}
			continue

		case mailbox.IsConnectionError(err):
			if connFailed {
				return counts, fmt.Errorf("second consecutive connection failure: %w", err)
			}
			connFailed = true
			log.Warn("connection failed, reopening session", "uid", ref.UID, "err", err)

			rerr := a.session.Reopen(ctx)
			if errors.Is(rerr, mailbox.ErrStaleRefs) {
				queue, rerr = a.relist(ctx, existing, seen, total-counts.Processed)
				if rerr != nil {
					return counts, rerr
				}
				continue
			}
			if rerr != nil {
				return counts, fmt.Errorf("reopening session: %w", rerr)
			}
			// Retry the same reference once.
			continue

		default:
			return counts, fmt.Errorf("fetching UID %d: %w", ref.UID, err)
		}

		queue = queue[1:]
		counts.Processed++

		d := decode.Decode(raw)
		switch {
		case d.MessageID == "":
			// Cannot deduplicate without an identifier; best-effort skip.
			log.Warn("message has no usable identifier, skipping", "uid", ref.UID)
			counts.Skipped++

		case contains(existing, d.MessageID) || contains(seen, d.MessageID):
			// The post-decode check is the authoritative dedup gate;
			// the pre-fetch envelope filter is only approximate.
			counts.Skipped++

		default:
			rec := model.Email{
				MessageID:    d.MessageID,
				Sender:       d.Sender,
				Recipient:    d.Recipient,
				Subject:      d.Subject,
				Date:         d.Date,
				Body:         d.Body,
				DomainsFound: extract.Join(extract.Domains(d.Body)),
			}
			inserted, ierr := a.store.InsertIfAbsent(ctx, rec)
			if ierr != nil {
				return counts, fmt.Errorf("persisting %s: %w", d.MessageID, ierr)
			}
			seen[d.MessageID] = struct{}{}
			if inserted {
				counts.Archived++
			} else {
				counts.Skipped++
			}
		}

		a.progress(counts.Processed, total)

		if a.cfg.Throttle > 0 && len(queue) > 0 {
			select {
			case <-ctx.Done():
				return counts, ctx.Err()
			case <-time.After(a.cfg.Throttle):
			}
		}
	}

	log.Info("batch complete",
		"processed", counts.Processed, "archived", counts.Archived, "skipped", counts.Skipped)
	return counts, nil
}

// relist rebuilds the queue after references were invalidated, keeping
// the remaining batch budget.
func (a *Archiver) relist(
	ctx context.Context,
	existing, seen map[string]struct{},
	budget int,
) ([]mailbox.MessageRef, error) {
	refs, err := a.session.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-listing mailbox: %w", err)
	}
	queue := pendingRefs(refs, existing, seen)
	if budget >= 0 && len(queue) > budget {
		queue = queue[:budget]
	}
	return queue, nil
}

func (a *Archiver) progress(processed, total int) {
	if a.OnProgress != nil {
		a.OnProgress(processed, total)
	}
}

// pendingRefs filters the remote reference list against the known
// message ids. References without an envelope id stay pending; their
// identity is only known after fetch and decode.
func pendingRefs(
	refs []mailbox.MessageRef,
	existing, seen map[string]struct{},
) []mailbox.MessageRef {
	var pending []mailbox.MessageRef
	for _, ref := range refs {
		if ref.MessageID != "" {
			if contains(existing, ref.MessageID) || contains(seen, ref.MessageID) {
				continue
			}
		}
		pending = append(pending, ref)
	}
	return pending
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
