package model

// Email is one archived message as persisted in the emails table.
// Rows are written once by the archiver and never updated.
type Email struct {
	// ID is the store-assigned surrogate key.
	ID int64 `db:"id" json:"id"`

	// MessageID is the message's own globally-unique identifier and
	// the sole deduplication key.
	MessageID string `db:"message_id" json:"message_id"`

	// Sender and Recipient are the decoded From/To header values,
	// unparsed beyond charset decoding.
	Sender    string `db:"sender" json:"sender"`
	Recipient string `db:"recipient" json:"recipient"`

	// Subject is the charset-normalized display string.
	Subject string `db:"subject" json:"subject"`

	// Date is the literal Date header value. Ordering and range
	// filtering in the query layer are lexical.
	Date string `db:"date" json:"date"`

	// Body is the concatenated plain-text content of all text-bearing
	// MIME parts.
	Body string `db:"body" json:"body"`

	// DomainsFound is a comma-joined list of hostnames extracted from
	// absolute links in the body, or nil when none were found.
	DomainsFound *string `db:"domains_found" json:"domains_found"`
}
