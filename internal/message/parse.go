package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Parse reads a raw message and returns its structured form.
func Parse(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("creating mail reader: %w", err)
	}
	defer mr.Close()

	msg := &Message{Headers: make(map[string][]string)}

	fields := mr.Header.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers[key] = append(msg.Headers[key], value)
	}

	h := mr.Header
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = ids[0]
	}
	if refs, err := h.MsgIDList("References"); err == nil {
		msg.References = refs
	}

	if from := addressList(h, "From"); len(from) > 0 {
		msg.From = from[0]
	}
	msg.To = addressList(h, "To")
	msg.Cc = addressList(h, "Cc")
	msg.Bcc = addressList(h, "Bcc")

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if gomessage.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("reading part: %w", err)
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("reading body: %w", err)
			}
			switch {
			case strings.HasPrefix(contentType, "text/html"):
				if msg.HTML == "" {
					msg.HTML = string(body)
				}
			case strings.HasPrefix(contentType, "text/plain"), contentType == "":
				if msg.Text == "" {
					msg.Text = string(body)
				}
			default:
				msg.Attachments = append(msg.Attachments, Attachment{
					ContentType: contentType,
					ContentID:   strings.Trim(ph.Get("Content-Id"), "<>"),
					Content:     body,
				})
			}
		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			contentType, _, _ := ph.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("reading attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				ContentID:   strings.Trim(ph.Get("Content-Id"), "<>"),
				Content:     data,
			})
		}
	}

	return msg, nil
}

// ParseBytes is Parse over an in-memory message.
func ParseBytes(raw []byte) (*Message, error) {
	return Parse(bytes.NewReader(raw))
}

// addressList parses an address header, falling back to word-decoding the raw
// value when it is not RFC 5322 conformant.
func addressList(h mail.Header, key string) []Address {
	list, err := h.AddressList(key)
	if err == nil {
		out := make([]Address, 0, len(list))
		for _, a := range list {
			out = append(out, Address{Address: a.Address, Name: a.Name})
		}
		return out
	}

	raw := h.Get(key)
	if raw == "" {
		return nil
	}
	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(raw); err == nil {
		raw = decoded
	}
	var out []Address
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Address{Address: p})
		}
	}
	return out
}
