package routing

import (
	"encoding/json"
	"fmt"

	"github.com/infodancer/mailroute/internal/address"
)

// SenderBinding routes mail from a specific sender (typically a relay) to
// preferred target domains.
type SenderBinding struct {
	TargetDomains DomainList `json:"targetDomains"`
	AllowedTo     DomainList `json:"allowedTo"`
	Strict        bool       `json:"strict"`
}

// Admits reports whether a message received for envelopeDomain may be
// processed under this binding. Only strict bindings with a non-empty
// AllowedTo restrict anything.
func (b SenderBinding) Admits(envelopeDomain string) bool {
	if !b.Strict || len(b.AllowedTo) == 0 {
		return true
	}
	envelopeDomain = address.NormalizeDomain(envelopeDomain)
	for _, d := range b.AllowedTo {
		if d == envelopeDomain {
			return true
		}
	}
	return false
}

// ResolveSenderBinding looks up sender by its exact normalized form and then
// by its plus-stripped form.
func ResolveSenderBinding(sender string, bindings map[string]SenderBinding) (SenderBinding, bool) {
	if len(bindings) == 0 {
		return SenderBinding{}, false
	}
	exact, ok := address.Normalize(sender, address.Options{})
	if !ok {
		return SenderBinding{}, false
	}
	if b, ok := bindings[exact]; ok {
		return b, true
	}
	stripped, ok := address.Normalize(exact, address.DefaultOptions)
	if ok && stripped != exact {
		if b, ok := bindings[stripped]; ok {
			return b, true
		}
	}
	return SenderBinding{}, false
}

// decodeBindings decodes {address: "domain" | {targetDomains, allowedTo, strict}}.
// Malformed entries are skipped.
func decodeBindings(raw string) (map[string]SenderBinding, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	out := make(map[string]SenderBinding, len(entries))
	for k, v := range entries {
		key, ok := address.Normalize(k, address.Options{})
		if !ok {
			continue
		}
		b, err := decodeBinding(v)
		if err != nil {
			continue
		}
		out[key] = b
	}
	return out, nil
}

func decodeBinding(v json.RawMessage) (SenderBinding, error) {
	var domain string
	if err := json.Unmarshal(v, &domain); err == nil {
		d := address.NormalizeDomain(domain)
		if d == "" {
			return SenderBinding{}, fmt.Errorf("empty binding domain")
		}
		return SenderBinding{TargetDomains: DomainList{d}}, nil
	}
	var b SenderBinding
	if err := json.Unmarshal(v, &b); err != nil {
		return SenderBinding{}, err
	}
	return b, nil
}
