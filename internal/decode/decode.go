// Package decode turns raw RFC 822 message bytes into the normalized
// content fields the archive persists.
package decode

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	// Register charset decoders (windows-1252, iso-8859-*, koi8-r, etc.)
	// so encoded headers and bodies are normalized to UTF-8.
	_ "github.com/emersion/go-message/charset"
	"golang.org/x/net/html"
)

// Decoded holds the content fields extracted from one raw message.
type Decoded struct {
	MessageID string
	Sender    string
	Recipient string
	Subject   string
	// Date is the literal header value, not parsed into a time.
	Date string
	Body string
}

// Decode parses raw message bytes into a Decoded record. It is total
// over malformed input: charset anomalies fall back to the raw header
// value with invalid byte sequences dropped, and a message whose MIME
// structure cannot be parsed at all yields an empty body rather than
// an error. The envelope fields are preserved on a best-effort basis
// because partial archival beats losing the message entirely.
func Decode(raw []byte) Decoded {
	var d Decoded

	ent, err := message.Read(bytes.NewReader(raw))
	if ent == nil {
		return d
	}
	// err may be non-nil for an unknown charset; the entity is still
	// usable and header decoding falls back per field below.
	_ = err

	h := ent.Header
	d.MessageID = trimMessageID(h.Get("Message-Id"))
	d.Sender = headerText(&h, "From")
	d.Recipient = headerText(&h, "To")
	d.Subject = headerText(&h, "Subject")
	d.Date = h.Get("Date")

	var body strings.Builder
	appendBody(&body, ent)
	d.Body = body.String()

	return d
}

// trimMessageID strips whitespace and the enclosing angle brackets so
// the identifier matches the form IMAP servers report in envelopes.
// Both forms must agree: the identifier is the sole deduplication key,
// compared against envelope ids before fetch and stored ids after.
func trimMessageID(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "<")
	v = strings.TrimSuffix(v, ">")
	return v
}

// headerText decodes an encoded-word header value to a display string,
// falling back to the raw value with invalid sequences dropped.
func headerText(h *message.Header, key string) string {
	text, err := h.Text(key)
	if err != nil {
		text = h.Get(key)
	}
	return strings.ToValidUTF8(text, "")
}

// appendBody walks the entity tree in traversal order, appending the
// text of every text/plain part and the tag-stripped text of every
// text/html part. No separator is inserted between parts beyond what
// each part contributes.
func appendBody(sb *strings.Builder, ent *message.Entity) {
	if mr := ent.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				// io.EOF ends the walk; any other error means the
				// remaining structure is unreadable, so keep what we have.
				return
			}
			appendBody(sb, part)
		}
	}

	mediaType, _, err := ent.Header.ContentType()
	if err != nil {
		mediaType = "text/plain"
	}

	switch mediaType {
	case "text/plain":
		sb.WriteString(readText(ent.Body))
	case "text/html":
		sb.WriteString(stripTags(readText(ent.Body)))
	}
}

// readText drains a (transfer- and charset-decoded) part body,
// dropping invalid byte sequences. Read errors truncate rather than
// fail: whatever decoded cleanly is kept.
func readText(r io.Reader) string {
	data, _ := io.ReadAll(r)
	return strings.ToValidUTF8(string(data), "")
}

// stripTags returns the visible text of an HTML fragment, skipping
// script and style contents.
func stripTags(s string) string {
	tok := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			name, _ := tok.TagName()
			if n := string(name); n == "script" || n == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := tok.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(tok.Text())
			}
		}
	}
}
