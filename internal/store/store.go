package store

import (
	"context"

	"github.com/nhle/mailarchive/internal/model"
)

// Filter controls filtering and pagination for archive queries. All
// text filters are substring matches; the date bounds compare
// lexically against the literal Date header values.
type Filter struct {
	Sender     string
	Recipient  string
	Subject    string
	DateFrom   string
	DateTo     string
	Domain     string
	BodySearch string
	Limit      int
	Offset     int
}

// Empty reports whether no filter predicate is set.
func (f Filter) Empty() bool {
	return f.Sender == "" && f.Recipient == "" && f.Subject == "" &&
		f.DateFrom == "" && f.DateTo == "" && f.Domain == "" && f.BodySearch == ""
}

// SenderCount is one entry of the top-senders statistic.
type SenderCount struct {
	Sender string `db:"sender" json:"sender"`
	Count  int    `db:"count" json:"count"`
}

// Stats summarizes the archive contents.
type Stats struct {
	TotalEmails       int           `json:"total_emails"`
	OldestEmail       string        `json:"oldest_email"`
	NewestEmail       string        `json:"newest_email"`
	EmailsWithDomains int           `json:"emails_with_domains"`
	TopSenders        []SenderCount `json:"top_senders"`
}

// Store defines the persistence interface for the email archive.
type Store interface {
	// ExistingMessageIDs returns the set of message IDs already
	// archived. The archiver reads it once at run start as a snapshot.
	ExistingMessageIDs(ctx context.Context) (map[string]struct{}, error)

	// InsertIfAbsent atomically inserts the record unless its
	// message_id is already present. It reports whether a row was
	// inserted; a duplicate is a no-op, not an error.
	InsertIfAbsent(ctx context.Context, email model.Email) (bool, error)

	// Query returns records matching the filter, ordered by date
	// descending.
	Query(ctx context.Context, filter Filter) ([]model.Email, error)

	// Stats reports archive-wide statistics.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
