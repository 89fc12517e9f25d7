package message

import (
	"strings"
	"testing"
)

const multipartMessage = "From: Alice Sender <alice@sender.example>\r\n" +
	"To: Bob <bob@recv.example>, carol@recv.example\r\n" +
	"Cc: dave@other.example\r\n" +
	"Subject: =?UTF-8?Q?Quarterly_report?=\r\n" +
	"Message-ID: <m1@sender.example>\r\n" +
	"References: <r1@sender.example> <r2@sender.example>\r\n" +
	"X-Original-To: bob+tag@recv.example\r\n" +
	"Delivered-To: catchall@recv.example\r\n" +
	"Delivered-To: second@recv.example\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain body\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>html body</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func TestParseMultipart(t *testing.T) {
	msg, err := Parse(strings.NewReader(multipartMessage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if msg.From.Address != "alice@sender.example" || msg.From.Name != "Alice Sender" {
		t.Errorf("From = %+v", msg.From)
	}
	if len(msg.To) != 2 || msg.To[0].Address != "bob@recv.example" || msg.To[1].Address != "carol@recv.example" {
		t.Errorf("To = %+v", msg.To)
	}
	if len(msg.Cc) != 1 || msg.Cc[0].Address != "dave@other.example" {
		t.Errorf("Cc = %+v", msg.Cc)
	}
	if msg.Subject != "Quarterly report" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.MessageID != "m1@sender.example" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if len(msg.References) != 2 {
		t.Errorf("References = %v", msg.References)
	}
	if !strings.Contains(msg.Text, "plain body") {
		t.Errorf("Text = %q", msg.Text)
	}
	if !strings.Contains(msg.HTML, "<p>html body</p>") {
		t.Errorf("HTML = %q", msg.HTML)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "report.pdf" || att.ContentType != "application/pdf" {
		t.Errorf("attachment = %+v", att)
	}
	if string(att.Content) != "%PDF-1.4" {
		t.Errorf("attachment content = %q", att.Content)
	}
}

func TestParseHeaders(t *testing.T) {
	msg, err := ParseBytes([]byte(multipartMessage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := msg.Header("X-Original-To"); got != "bob+tag@recv.example" {
		t.Errorf("X-Original-To = %q", got)
	}
	if got := msg.Headers["delivered-to"]; len(got) != 2 {
		t.Errorf("expected 2 delivered-to values, got %v", got)
	}
	if got := msg.Header("Missing"); got != "" {
		t.Errorf("missing header = %q", got)
	}
}

func TestParsePlain(t *testing.T) {
	raw := "From: x@y.example\r\nTo: z@w.example\r\nSubject: hi\r\n\r\njust text\r\n"
	msg, err := ParseBytes([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(msg.Text, "just text") {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.HTML != "" || len(msg.Attachments) != 0 {
		t.Errorf("unexpected html/attachments: %+v", msg)
	}
}

func TestRedactedIsCopy(t *testing.T) {
	orig := &Message{
		From:        Address{Address: "a@b.example"},
		Subject:     "s",
		Text:        "secret",
		HTML:        "<b>secret</b>",
		Attachments: []Attachment{{Filename: "f.txt", Content: []byte("x")}},
	}

	red := orig.Redacted("[removed]")

	if red.Text != "[removed]" || red.HTML != "[removed]" || len(red.Attachments) != 0 {
		t.Errorf("redacted = %+v", red)
	}
	if red.From != orig.From || red.Subject != orig.Subject {
		t.Error("redaction must keep metadata")
	}
	if orig.Text != "secret" || orig.HTML != "<b>secret</b>" || len(orig.Attachments) != 1 {
		t.Error("redaction modified the original message")
	}
}

func TestHeaderCaseInsensitive(t *testing.T) {
	m := &Message{Headers: map[string][]string{"x-original-to": {"a@x.example", "b@x.example"}}}
	for _, name := range []string{"X-Original-To", "x-original-to", "X-ORIGINAL-TO"} {
		if got := m.Header(name); got != "a@x.example" {
			t.Errorf("Header(%q) = %q, want first value", name, got)
		}
	}
	if got := m.Header("Delivered-To"); got != "" {
		t.Errorf("Header(missing) = %q", got)
	}
	var nilMsg *Message
	if got := nilMsg.Header("To"); got != "" {
		t.Errorf("nil Header = %q", got)
	}
}
