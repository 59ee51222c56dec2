// Package ingest turns inbound messages into pending emails ready for
// classification. It derives the primary domain and subdomain of every
// sender with mailaddr so stored rows and rules agree on the hierarchy.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // decode non-UTF-8 headers
	"github.com/emersion/go-message/mail"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/mailaddr"
)

var (
	// ErrNoSender is returned when a message has no usable From address.
	ErrNoSender = errors.New("message has no valid sender")
	// ErrMalformed wraps header parse failures.
	ErrMalformed = errors.New("malformed message")
)

// Fields are the observed attributes of one message.
type Fields struct {
	MessageID string
	From      string
	To        string
	Subject   string
	Date      time.Time
}

// NewPendingEmail validates f and builds the pending row for userEmail. An
// empty To defaults to the mailbox owner; an empty MessageID is replaced by
// a digest of the other fields so re-ingesting the same message is a no-op.
func NewPendingEmail(userEmail string, f Fields) (domain.PendingEmail, error) {
	from := mailaddr.Normalize(f.From)
	if !mailaddr.Valid(from) {
		return domain.PendingEmail{}, fmt.Errorf("%w: %q", ErrNoSender, f.From)
	}
	to := mailaddr.Normalize(f.To)
	if to == "" {
		to = mailaddr.Normalize(userEmail)
	}
	date := f.Date
	if date.IsZero() {
		date = time.Now()
	}
	msgID := strings.Trim(strings.TrimSpace(f.MessageID), "<>")
	if msgID == "" {
		msgID = digest(from, to, f.Subject, date)
	}

	parts := mailaddr.Parse(from)
	e := domain.PendingEmail{
		UserEmail:     mailaddr.Normalize(userEmail),
		MessageID:     msgID,
		FromEmail:     from,
		ToEmail:       to,
		Subject:       strings.TrimSpace(f.Subject),
		PrimaryDomain: parts.PrimaryDomain,
		EmailDate:     date.UTC(),
	}
	if parts.HasSubdomain {
		full := parts.FullDomain
		e.Subdomain = &full
	}
	return e, nil
}

func digest(from, to, subject string, date time.Time) string {
	h := sha256.New()
	for _, s := range []string{from, to, subject, date.UTC().Format(time.RFC3339)} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// ParseMessage reads an RFC 5322 message and extracts its triage fields.
// Only headers are consulted; the body is never read into memory.
func ParseMessage(r io.Reader) (Fields, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	h := mail.Header{Header: entity.Header}

	var f Fields
	from, err := h.AddressList("From")
	if err != nil {
		return Fields{}, fmt.Errorf("%w: From: %v", ErrMalformed, err)
	}
	if len(from) == 0 {
		return Fields{}, ErrNoSender
	}
	f.From = from[0].Address

	if to, err := h.AddressList("To"); err == nil && len(to) > 0 {
		f.To = to[0].Address
	}
	f.Subject, _ = h.Subject()
	f.MessageID, _ = h.MessageID()
	f.Date, _ = h.Date()
	return f, nil
}
