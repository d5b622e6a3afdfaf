package archive_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailarchive/internal/archive"
	"github.com/nhle/mailarchive/internal/mailbox"
	"github.com/nhle/mailarchive/internal/store"
	"github.com/nhle/mailarchive/tests/testutil"
)

// fakeSession serves scripted messages and failures to the archiver.
type fakeSession struct {
	refs      []mailbox.MessageRef
	msgs      map[imap.UID][]byte
	failUID   map[imap.UID]int // remaining connection failures per UID
	notFound  map[imap.UID]bool
	reopenErr error // returned by the next Reopen call, then cleared

	reopens   int
	listCalls int
}

func (f *fakeSession) ListAll(_ context.Context) ([]mailbox.MessageRef, error) {
	f.listCalls++
	return f.refs, nil
}

func (f *fakeSession) FetchRaw(_ context.Context, ref mailbox.MessageRef) ([]byte, error) {
	if n := f.failUID[ref.UID]; n > 0 {
		f.failUID[ref.UID] = n - 1
		return nil, &mailbox.ConnectionError{Op: "fetch", Err: errors.New("connection reset")}
	}
	if f.notFound[ref.UID] {
		return nil, &mailbox.NotFoundError{UID: ref.UID}
	}
	raw, ok := f.msgs[ref.UID]
	if !ok {
		return nil, &mailbox.NotFoundError{UID: ref.UID}
	}
	return raw, nil
}

func (f *fakeSession) Reopen(_ context.Context) error {
	f.reopens++
	err := f.reopenErr
	f.reopenErr = nil
	return err
}

func (f *fakeSession) Close() error { return nil }

// rawMsg builds a minimal single-part message.
func rawMsg(messageID, sender, date, body string) []byte {
	return []byte(fmt.Sprintf(
		"Message-ID: %s\r\nFrom: %s\r\nTo: archive@example.com\r\nDate: %s\r\nSubject: test\r\nContent-Type: text/plain\r\n\r\n%s",
		messageID, sender, date, body,
	))
}

// newFakeSession scripts n sequential messages. withEnvelopeIDs controls
// whether ListAll exposes Message-IDs for the pre-fetch filter.
func newFakeSession(n int, withEnvelopeIDs bool) *fakeSession {
	f := &fakeSession{
		msgs:     make(map[imap.UID][]byte),
		failUID:  make(map[imap.UID]int),
		notFound: make(map[imap.UID]bool),
	}
	for i := 1; i <= n; i++ {
		uid := imap.UID(i)
		// Envelope ids arrive without angle brackets; the raw header
		// carries them. Dedup must work across the two forms.
		id := fmt.Sprintf("msg%d@example.com", i)
		ref := mailbox.MessageRef{UID: uid}
		if withEnvelopeIDs {
			ref.MessageID = id
		}
		f.refs = append(f.refs, ref)
		f.msgs[uid] = rawMsg("<"+id+">", "alice@example.com", fmt.Sprintf("2024-01-0%d", i), "hello from http://example.com/x")
	}
	return f
}

func run(t *testing.T, sess archive.Session, st store.Store, batch int) (archive.Counts, error) {
	t.Helper()
	a := archive.New(sess, st, archive.Config{BatchSize: batch}, nil)
	return a.Run(context.Background())
}

func TestRunArchivesAll(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, true)

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	assert.Equal(t, 3, counts.Discovered)
	assert.Equal(t, 3, counts.Pending)
	assert.Equal(t, 3, counts.Processed)
	assert.Equal(t, 3, counts.Archived)
	assert.Equal(t, 0, counts.Skipped)

	ids, err := st.ExistingMessageIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	// Domains were extracted along the way.
	got, err := st.Query(context.Background(), store.Filter{Domain: "example.com"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRunIdempotent(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, true)

	_, err := run(t, sess, st, 500)
	require.NoError(t, err)

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	// The envelope pre-filter empties the pending set.
	assert.Equal(t, 0, counts.Pending)
	assert.Equal(t, 0, counts.Archived)
}

func TestRunIdempotentWithoutEnvelopeIDs(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, false)

	_, err := run(t, sess, st, 500)
	require.NoError(t, err)

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	// No envelope ids, so everything is re-fetched; the post-decode
	// gate still archives nothing new.
	assert.Equal(t, 3, counts.Pending)
	assert.Equal(t, 3, counts.Processed)
	assert.Equal(t, 0, counts.Archived)
	assert.Equal(t, 3, counts.Skipped)

	ids, err := st.ExistingMessageIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestRunBatchBoundsAndResume(t *testing.T) {
	st := testutil.NewTestStore(t)

	var totalArchived int
	for i, want := range []int{2, 2, 1} {
		sess := newFakeSession(5, true)
		counts, err := run(t, sess, st, 2)
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, want, counts.Archived, "run %d", i)
		totalArchived += counts.Archived
	}
	assert.Equal(t, 5, totalArchived)

	// A fourth run finds nothing pending.
	sess := newFakeSession(5, true)
	counts, err := run(t, sess, st, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Pending)
}

func TestRunReconnectRetryOnce(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, true)
	sess.failUID[2] = 1 // one transient failure mid-batch

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	assert.Equal(t, 1, sess.reopens)
	assert.Equal(t, 3, counts.Archived)
}

func TestRunSecondConsecutiveFailureFatal(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, true)
	sess.failUID[2] = 2 // fails again right after the reopen

	counts, err := run(t, sess, st, 500)
	require.Error(t, err)
	assert.True(t, mailbox.IsConnectionError(err))
	assert.Equal(t, 1, sess.reopens)

	// Progress committed before the abort is intact.
	assert.Equal(t, 1, counts.Archived)
	ids, serr := st.ExistingMessageIDs(context.Background())
	require.NoError(t, serr)
	assert.Contains(t, ids, "msg1@example.com")
}

func TestRunStaleRefsRelisted(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, true)
	sess.failUID[1] = 1
	sess.reopenErr = mailbox.ErrStaleRefs

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	assert.Equal(t, 1, sess.reopens)
	assert.GreaterOrEqual(t, sess.listCalls, 2)
	assert.Equal(t, 3, counts.Archived)
}

func TestRunVanishedMessageResetsRetryBudget(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(2, true)
	// Transient failure, then the retried fetch reports the message
	// gone. That answer must restore the retry budget so the later
	// failure on uid 2 is treated as a fresh one, not as a second
	// consecutive failure.
	sess.failUID[1] = 1
	sess.notFound[1] = true
	sess.failUID[2] = 1

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	assert.Equal(t, 2, sess.reopens)
	assert.Equal(t, 1, counts.Archived)
	assert.Equal(t, 1, counts.Skipped)
}

func TestRunSkipsVanishedMessages(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, true)
	sess.notFound[2] = true

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	assert.Equal(t, 3, counts.Processed)
	assert.Equal(t, 2, counts.Archived)
	assert.Equal(t, 1, counts.Skipped)
}

func TestRunSkipsMissingMessageID(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(2, false)
	sess.msgs[1] = []byte("From: x@example.com\r\nSubject: no id\r\n\r\nbody")

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Archived)
	assert.Equal(t, 1, counts.Skipped)
}

func TestRunDeduplicatesWithinRun(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(2, false)
	// Two distinct UIDs carrying the same Message-ID.
	dup := rawMsg("<dup@example.com>", "alice@example.com", "2024-01-01", "same message twice")
	sess.msgs[1] = dup
	sess.msgs[2] = dup

	counts, err := run(t, sess, st, 500)
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Archived)
	assert.Equal(t, 1, counts.Skipped)

	ids, err := st.ExistingMessageIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRunReportsProgress(t *testing.T) {
	st := testutil.NewTestStore(t)
	sess := newFakeSession(3, true)

	a := archive.New(sess, st, archive.Config{BatchSize: 500}, nil)
	var calls []int
	a.OnProgress = func(processed, total int) {
		assert.Equal(t, 3, total)
		calls = append(calls, processed)
	}

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, calls)
}
