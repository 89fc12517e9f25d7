// Package notify tells external targets about newly stored messages.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/infodancer/mailroute/internal/store"
)

// MaxExcerpt caps the body excerpt carried in a notification, in runes.
const MaxExcerpt = 3000

// Target receives notifications for stored messages.
type Target interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Summary is the notification-relevant view of a stored record.
type Summary struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	SenderName string    `json:"sender_name"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
	Excerpt    string    `json:"excerpt"`
}

// Rendered is a Summary formatted for humans.
type Rendered struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Notification is what every target is handed.
type Notification struct {
	Summary  Summary  `json:"summary"`
	Rendered Rendered `json:"rendered"`
}

var stripper = bluemonday.StrictPolicy()

// NewSummary builds a Summary from a persisted record. The excerpt is the
// plain-text body, or the HTML body with all markup stripped.
func NewSummary(rec *store.Record) Summary {
	return Summary{
		ID:         rec.ID,
		Subject:    rec.Subject,
		SenderName: rec.SendName,
		Sender:     rec.SendEmail,
		Recipient:  rec.ToEmail,
		Status:     string(rec.Status),
		ReceivedAt: rec.CreatedAt,
		Excerpt:    excerpt(rec.Text, rec.HTML),
	}
}

func excerpt(text, body string) string {
	s := strings.TrimSpace(text)
	if s == "" && body != "" {
		s = html.UnescapeString(stripper.Sanitize(body))
		s = strings.Join(strings.Fields(s), " ")
	}
	if r := []rune(s); len(r) > MaxExcerpt {
		s = string(r[:MaxExcerpt]) + "…"
	}
	return s
}

const textLayout = `{{.Subject}}

From: {{.SenderName}} <{{.Sender}}>
To: {{.Recipient}}
Time: {{.ReceivedAt.Format "2006-01-02 15:04"}} UTC

{{.Excerpt}}`

const htmlLayout = `<b>{{.Subject}}</b>

<b>From:</b> {{.SenderName}} &lt;{{.Sender}}&gt;
<b>To:</b> {{.Recipient}}
<b>Time:</b> {{.ReceivedAt.Format "2006-01-02 15:04"}} UTC

{{.Excerpt}}`

var (
	textTmpl = template.Must(template.New("text").Parse(textLayout))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlLayout))
)

// Render formats s as plain text and as the restricted HTML subset chat
// services accept.
func Render(s Summary) (Rendered, error) {
	var text, body bytes.Buffer
	if err := textTmpl.Execute(&text, s); err != nil {
		return Rendered{}, fmt.Errorf("failed to render text: %w", err)
	}
	if err := htmlTmpl.Execute(&body, s); err != nil {
		return Rendered{}, fmt.Errorf("failed to render html: %w", err)
	}
	subject := s.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return Rendered{
		Subject: "New mail for " + s.Recipient + ": " + subject,
		Text:    text.String(),
		HTML:    body.String(),
	}, nil
}

// New renders rec into a Notification.
func New(rec *store.Record) (Notification, error) {
	s := NewSummary(rec)
	r, err := Render(s)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Summary: s, Rendered: r}, nil
}
