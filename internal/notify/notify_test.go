package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/infodancer/mailroute/internal/routing"
	"github.com/infodancer/mailroute/internal/store"
)

func testRecord() *store.Record {
	return &store.Record{
		ID:        "3f1c",
		ToEmail:   "alice@display.example",
		SendEmail: "bob@sender.example",
		SendName:  "Bob",
		Subject:   "Quarterly <report>",
		Text:      "Numbers attached.",
		Status:    routing.StatusReceived,
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(testRecord())

	if s.ID != "3f1c" || s.Recipient != "alice@display.example" || s.Sender != "bob@sender.example" {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.Status != "RECEIVED" {
		t.Errorf("Status = %q, want RECEIVED", s.Status)
	}
	if s.Excerpt != "Numbers attached." {
		t.Errorf("Excerpt = %q", s.Excerpt)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name string
		text string
		html string
		want string
	}{
		{"text preferred", "  plain  ", "<p>html</p>", "plain"},
		{"html stripped", "", "<p>Hello <b>there</b></p>\n<p>friend &amp; co</p>", "Hello there friend & co"},
		{"script dropped", "", "<script>alert(1)</script><p>ok</p>", "ok"},
		{"both empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := excerpt(tt.text, tt.html); got != tt.want {
				t.Errorf("excerpt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcerptTruncates(t *testing.T) {
	got := excerpt(strings.Repeat("é", MaxExcerpt+10), "")
	if n := len([]rune(got)); n != MaxExcerpt+1 {
		t.Errorf("excerpt length = %d runes, want %d", n, MaxExcerpt+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("expected ellipsis on truncated excerpt")
	}
}

func TestRender(t *testing.T) {
	r, err := Render(NewSummary(testRecord()))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if r.Subject != "New mail for alice@display.example: Quarterly <report>" {
		t.Errorf("Subject = %q", r.Subject)
	}
	for _, want := range []string{"Quarterly <report>", "From: Bob <bob@sender.example>", "To: alice@display.example", "2026-03-04 05:06 UTC", "Numbers attached."} {
		if !strings.Contains(r.Text, want) {
			t.Errorf("text rendering missing %q:\n%s", want, r.Text)
		}
	}
	// HTML rendering escapes message content.
	if !strings.Contains(r.HTML, "<b>Quarterly &lt;report&gt;</b>") {
		t.Errorf("html rendering did not escape subject:\n%s", r.HTML)
	}
	if !strings.Contains(r.HTML, "Bob &lt;bob@sender.example&gt;") {
		t.Errorf("html rendering missing sender:\n%s", r.HTML)
	}
}

func TestRenderEmptySubject(t *testing.T) {
	rec := testRecord()
	rec.Subject = ""
	n, err := New(rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if n.Rendered.Subject != "New mail for alice@display.example: (no subject)" {
		t.Errorf("Subject = %q", n.Rendered.Subject)
	}
	if n.Summary.ID != rec.ID {
		t.Errorf("Summary.ID = %q, want %q", n.Summary.ID, rec.ID)
	}
}
