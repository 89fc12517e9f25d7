// Package message holds the parsed form of an inbound message and the MIME
// parser that produces it.
package message

import "strings"

// Address is a single mailbox from an address header.
type Address struct {
	Address string
	Name    string
}

// Attachment is a non-inline MIME part.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Content     []byte
}

// Message is the structured form of a raw RFC 5322 message.
type Message struct {
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
	MessageID   string
	InReplyTo   string
	References  []string

	// Headers maps lower-cased header names to their raw values in
	// message order.
	Headers map[string][]string
}

// Header returns the first value of the named header, or "".
func (m *Message) Header(name string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	if v := m.Headers[strings.ToLower(name)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Redacted returns a copy of m with both bodies replaced by placeholder and
// no attachments. Header metadata is shared with m; m is not modified.
func (m *Message) Redacted(placeholder string) *Message {
	c := *m
	c.HTML = placeholder
	c.Text = placeholder
	c.Attachments = nil
	return &c
}
