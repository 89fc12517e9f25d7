package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/infodancer/mailroute/internal/address"
	"github.com/infodancer/mailroute/internal/message"
	"github.com/infodancer/mailroute/internal/routing"
)

// statusSaving marks a row whose attachments are still being written. It is
// never visible after Persist returns.
const statusSaving = "SAVING"

// attachmentPrefix namespaces attachment blob keys.
const attachmentPrefix = "attachments/"

// Record is one persisted message for one resolved recipient.
type Record struct {
	ID           string
	AccountID    int64
	UserID       int64
	ToEmail      string
	ToName       string
	SendEmail    string
	SendName     string
	EnvelopeFrom string
	EnvelopeTo   string
	Subject      string
	HTML         string
	Text         string
	Recipients   []message.Address
	Cc           []message.Address
	Bcc          []message.Address
	MessageID    string
	InReplyTo    string
	References   []string
	Redacted     bool
	DKIM         string
	Status       routing.Status
	CreatedAt    time.Time
}

// StoredAttachment is attachment metadata as persisted.
type StoredAttachment struct {
	ID          int64
	MessageID   string
	Key         string
	Filename    string
	ContentType string
	ContentID   string
	Size        int64
}

// NewRecord builds the record for an outcome. msg is the message to store,
// which is already redacted when the outcome requires it.
func NewRecord(out routing.Outcome, env routing.Envelope, msg *message.Message) *Record {
	r := &Record{
		ToEmail:      out.Result.FinalAddress,
		EnvelopeFrom: env.From,
		EnvelopeTo:   env.To,
		Redacted:     out.Disposition == routing.Redacted,
		Status:       out.Status,
	}
	if acct := out.Result.Account; acct != nil {
		r.AccountID = acct.ID
		r.UserID = acct.UserID
	}
	if msg == nil {
		return r
	}

	r.SendEmail = msg.From.Address
	r.SendName = msg.From.Name
	if r.SendName == "" {
		r.SendName = address.Local(msg.From.Address)
	}
	r.Subject = msg.Subject
	r.HTML = msg.HTML
	r.Text = msg.Text
	r.Recipients = msg.To
	r.Cc = msg.Cc
	r.Bcc = msg.Bcc
	r.MessageID = msg.MessageID
	r.InReplyTo = msg.InReplyTo
	r.References = msg.References

	for _, to := range msg.To {
		if strings.EqualFold(to.Address, r.ToEmail) || strings.EqualFold(to.Address, env.To) {
			r.ToName = to.Name
			break
		}
	}
	return r
}

// AttachmentKey returns the content-addressed blob key for an attachment.
func AttachmentKey(a message.Attachment) string {
	sum := sha256.Sum256(a.Content)
	return attachmentPrefix + hex.EncodeToString(sum[:]) + strings.ToLower(filepath.Ext(a.Filename))
}

// Persist stores rec and its attachments in one transaction. The row is
// written as SAVING, attachments are added, and the final status is set
// last. rec.ID and rec.CreatedAt are filled in.
func (db *DB) Persist(ctx context.Context, rec *Record, attachments []message.Attachment) (*Record, error) {
	if rec.Status == "" {
		return nil, fmt.Errorf("record for %s has no status", rec.ToEmail)
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC().Truncate(time.Second)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (
			id, account_id, user_id, to_email, to_name, send_email, send_name,
			envelope_from, envelope_to, subject, html, text,
			recipients, cc, bcc, message_id, in_reply_to, refs,
			redacted, dkim, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.AccountID, rec.UserID, rec.ToEmail, rec.ToName, rec.SendEmail, rec.SendName,
		rec.EnvelopeFrom, rec.EnvelopeTo, rec.Subject, rec.HTML, rec.Text,
		toJSON(rec.Recipients), toJSON(rec.Cc), toJSON(rec.Bcc), rec.MessageID, rec.InReplyTo, toJSON(rec.References),
		rec.Redacted, rec.DKIM, statusSaving, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	for _, a := range attachments {
		key := AttachmentKey(a)
		content := a.Content
		if content == nil {
			content = []byte{}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO blobs (key, content) VALUES (?, ?) ON CONFLICT(key) DO NOTHING",
			key, content); err != nil {
			return nil, fmt.Errorf("failed to store attachment content: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (message_id, key, filename, content_type, content_id, size)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, key, a.Filename, a.ContentType, a.ContentID, len(a.Content)); err != nil {
			return nil, fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET status = ? WHERE id = ?", string(rec.Status), rec.ID); err != nil {
		return nil, fmt.Errorf("failed to complete message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return rec, nil
}

// GetMessage returns the record with id.
func (db *DB) GetMessage(ctx context.Context, id string) (*Record, error) {
	var (
		r                         Record
		status                    string
		recipients, cc, bcc, refs string
		created                   int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, account_id, user_id, to_email, to_name, send_email, send_name,
			envelope_from, envelope_to, subject, html, text,
			recipients, cc, bcc, message_id, in_reply_to, refs,
			redacted, dkim, status, created_at
		FROM messages WHERE id = ?
	`, id).Scan(
		&r.ID, &r.AccountID, &r.UserID, &r.ToEmail, &r.ToName, &r.SendEmail, &r.SendName,
		&r.EnvelopeFrom, &r.EnvelopeTo, &r.Subject, &r.HTML, &r.Text,
		&recipients, &cc, &bcc, &r.MessageID, &r.InReplyTo, &refs,
		&r.Redacted, &r.DKIM, &status, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	r.Status = routing.Status(status)
	r.CreatedAt = time.Unix(created, 0).UTC()
	_ = json.Unmarshal([]byte(recipients), &r.Recipients)
	_ = json.Unmarshal([]byte(cc), &r.Cc)
	_ = json.Unmarshal([]byte(bcc), &r.Bcc)
	_ = json.Unmarshal([]byte(refs), &r.References)
	return &r, nil
}

// CountMessages returns the number of stored messages addressed to toEmail.
func (db *DB) CountMessages(ctx context.Context, toEmail string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE to_email = ?", toEmail).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// ListAttachments returns the attachments of a message in insertion order.
func (db *DB) ListAttachments(ctx context.Context, messageID string) ([]StoredAttachment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, message_id, key, filename, content_type, content_id, size
		FROM attachments WHERE message_id = ? ORDER BY id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredAttachment
	for rows.Next() {
		var a StoredAttachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Key, &a.Filename, &a.ContentType, &a.ContentID, &a.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AttachmentContent returns the stored bytes for key.
func (db *DB) AttachmentContent(ctx context.Context, key string) ([]byte, error) {
	var b []byte
	err := db.QueryRowContext(ctx, "SELECT content FROM blobs WHERE key = ?", key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return b, nil
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}
