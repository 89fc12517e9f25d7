package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/infodancer/mailroute/internal/address"
)

// Setting keys. Every value is JSON.
const (
	KeyAllowedDomains     = "allowed_domains"
	KeyDisplayDomainMap   = "display_domain_map"
	KeySinkAccounts       = "sink_accounts"
	KeyAdminAddress       = "admin_address"
	KeySenderBindings     = "sender_bindings"
	KeyRecipientAliases   = "recipient_domain_aliases"
	KeyCanonicalDomains   = "canonical_domains"
	KeyPrimaryDomain      = "primary_domain"
	KeyAcceptUnknown      = "accept_unknown_recipients"
	KeyForceVisible       = "force_visible"
	KeyRuleMode           = "rule_mode"
	KeyRuleAddresses      = "rule_addresses"
	KeyRuleSkipWhenForced = "rule_skip_when_forced"
	KeyHeaderExclusions   = "header_exclusions"
	KeyDropPlusTag        = "drop_plus_tag"
	KeyNotifyEnabled      = "notify_enabled"
	KeyReceiveEnabled     = "receive_enabled"
)

// SettingKeys lists every key LoadSnapshot reads.
var SettingKeys = []string{
	KeyAllowedDomains, KeyDisplayDomainMap, KeySinkAccounts, KeyAdminAddress,
	KeySenderBindings, KeyRecipientAliases, KeyCanonicalDomains, KeyPrimaryDomain,
	KeyAcceptUnknown, KeyForceVisible, KeyRuleMode, KeyRuleAddresses,
	KeyRuleSkipWhenForced, KeyHeaderExclusions, KeyDropPlusTag, KeyNotifyEnabled,
	KeyReceiveEnabled,
}

// SettingsSource provides raw JSON setting values by key.
// ok is false when the key is not set.
type SettingsSource interface {
	Setting(ctx context.Context, key string) (value string, ok bool, err error)
}

// Snapshot is the read-only routing configuration used for one message.
type Snapshot struct {
	AllowedDomains     []string
	DisplayDomains     map[string][]string
	SinkAccounts       map[string]string
	AdminAddress       string
	SenderBindings     map[string]SenderBinding
	RecipientAliases   map[string][]string
	CanonicalDomains   []string
	PrimaryDomain      string
	AcceptUnknown      bool
	ForceVisible       bool
	RuleMode           bool
	RuleAddresses      []string
	RuleSkipWhenForced bool
	HeaderExclusions   []string
	DropPlusTag        bool
	NotifyEnabled      bool
	// ReceiveEnabled false drops every inbound message.
	ReceiveEnabled bool
}

// DefaultSnapshot returns the configuration used when no settings exist.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		DisplayDomains:   map[string][]string{},
		SinkAccounts:     map[string]string{},
		SenderBindings:   map[string]SenderBinding{},
		RecipientAliases: map[string][]string{},
		AcceptUnknown:    true,
		DropPlusTag:      true,
		NotifyEnabled:    true,
		ReceiveEnabled:   true,
	}
}

// AddressOptions returns the normalizer options for this snapshot.
func (s *Snapshot) AddressOptions() address.Options {
	return address.Options{DropPlusTag: s.DropPlusTag}
}

// DomainList is a JSON value that may be a single domain string or a list.
type DomainList []string

// UnmarshalJSON accepts "a.example" or ["a.example", "b.example"].
func (d *DomainList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*d = normalizeDomains([]string{one})
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("domain list: expected string or array of strings")
	}
	*d = normalizeDomains(many)
	return nil
}

// LoadSnapshot reads every routing setting from src. Values that are not
// valid JSON for their key degrade to the default for that key and are
// logged; only errors from src itself are returned.
func LoadSnapshot(ctx context.Context, src SettingsSource, logger *slog.Logger) (Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap := DefaultSnapshot()

	for _, key := range SettingKeys {
		raw, ok, err := src.Setting(ctx, key)
		if err != nil {
			return snap, fmt.Errorf("reading setting %s: %w", key, err)
		}
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := snap.apply(key, raw); err != nil {
			logger.Warn("ignoring malformed setting",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}

	return snap, nil
}

// ValidateSetting reports whether raw is a usable value for key.
func ValidateSetting(key, raw string) error {
	if !slices.Contains(SettingKeys, key) {
		return fmt.Errorf("unknown setting %q", key)
	}
	snap := DefaultSnapshot()
	if err := snap.apply(key, raw); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func (s *Snapshot) apply(key, raw string) error {
	switch key {
	case KeyAllowedDomains:
		return decodeDomains(raw, &s.AllowedDomains)
	case KeyCanonicalDomains:
		return decodeDomains(raw, &s.CanonicalDomains)
	case KeyDisplayDomainMap:
		m, err := decodeDomainMap(raw)
		if err != nil {
			return err
		}
		s.DisplayDomains = m
	case KeyRecipientAliases:
		m, err := decodeDomainMap(raw)
		if err != nil {
			return err
		}
		s.RecipientAliases = m
	case KeySinkAccounts:
		m, err := decodeSinks(raw)
		if err != nil {
			return err
		}
		s.SinkAccounts = m
	case KeySenderBindings:
		m, err := decodeBindings(raw)
		if err != nil {
			return err
		}
		s.SenderBindings = m
	case KeyAdminAddress:
		var v string
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return err
		}
		s.AdminAddress, _ = address.Normalize(v, address.Options{})
	case KeyPrimaryDomain:
		var v string
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return err
		}
		s.PrimaryDomain = address.NormalizeDomain(v)
	case KeyRuleAddresses:
		var v []string
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return err
		}
		s.RuleAddresses = s.RuleAddresses[:0]
		for _, a := range v {
			if n, ok := address.Normalize(a, address.Options{}); ok {
				s.RuleAddresses = append(s.RuleAddresses, n)
			}
		}
	case KeyHeaderExclusions:
		var v []string
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return err
		}
		s.HeaderExclusions = s.HeaderExclusions[:0]
		for _, h := range v {
			s.HeaderExclusions = append(s.HeaderExclusions, strings.ToLower(strings.TrimSpace(h)))
		}
	case KeyAcceptUnknown:
		return decodeBool(raw, &s.AcceptUnknown)
	case KeyForceVisible:
		return decodeBool(raw, &s.ForceVisible)
	case KeyRuleMode:
		return decodeBool(raw, &s.RuleMode)
	case KeyRuleSkipWhenForced:
		return decodeBool(raw, &s.RuleSkipWhenForced)
	case KeyDropPlusTag:
		return decodeBool(raw, &s.DropPlusTag)
	case KeyNotifyEnabled:
		return decodeBool(raw, &s.NotifyEnabled)
	case KeyReceiveEnabled:
		return decodeBool(raw, &s.ReceiveEnabled)
	}
	return nil
}

func decodeDomains(raw string, dst *[]string) error {
	var v DomainList
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// decodeDomainMap decodes {domain: string|[]string}. Entries whose value is
// neither are skipped so one bad entry does not discard the rest.
func decodeDomainMap(raw string) (map[string][]string, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(entries))
	for k, v := range entries {
		var list DomainList
		if err := json.Unmarshal(v, &list); err != nil || len(list) == 0 {
			continue
		}
		out[address.NormalizeDomain(k)] = list
	}
	return out, nil
}

func decodeSinks(raw string) (map[string]string, error) {
	var entries map[string]string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		n, ok := address.Normalize(v, address.Options{})
		if !ok {
			continue
		}
		key := k
		if key != "*" {
			key = address.NormalizeDomain(k)
		}
		out[key] = n
	}
	return out, nil
}

// decodeBool accepts JSON booleans as well as "true"/"1" style strings and
// numbers, which operators commonly store.
func decodeBool(raw string, dst *bool) error {
	var b bool
	if err := json.Unmarshal([]byte(raw), &b); err == nil {
		*dst = b
		return nil
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		raw = s
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("expected boolean, got %q", raw)
	}
	*dst = b
	return nil
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = address.NormalizeDomain(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// MapSource is a SettingsSource backed by a map, used for static defaults.
type MapSource map[string]string

// Setting implements SettingsSource.
func (m MapSource) Setting(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// LayeredSource consults each source in order and returns the first value set.
type LayeredSource []SettingsSource

// Setting implements SettingsSource.
func (l LayeredSource) Setting(ctx context.Context, key string) (string, bool, error) {
	for _, src := range l {
		if src == nil {
			continue
		}
		v, ok, err := src.Setting(ctx, key)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}
