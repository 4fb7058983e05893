package linkedinmessaging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// URN is a LinkedIn Uniform Resource Name, the opaque namespaced
// identifier the Voyager API uses for entities (conversations, events,
// members). A URN is a colon-joined namespace prefix followed by one or
// more comma-joined id parts, e.g.
//
//	urn:li:fs_conversation:2-abc123
//	urn:li:fs_event:(2-abc123,S4CzAAA=)
//
// Equality is defined over the id parts only, not the prefix. This
// mirrors the remote service, which refers to the same entity through
// several namespaces (fs_event vs. fsd_message, and so on). Two URNs
// with the same ids under different prefixes therefore compare equal.
type URN struct {
	prefix  string
	idParts []string
}

// ParseURN parses the string form of a URN. The last colon-separated
// segment holds the id parts; surrounding parentheses, present when a
// URN carries more than one id, are stripped.
func ParseURN(s string) URN {
	prefix, last := "", s
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		prefix, last = s[:idx], s[idx+1:]
	}
	last = strings.TrimSuffix(strings.TrimPrefix(last, "("), ")")
	return URN{prefix: prefix, idParts: strings.Split(last, ",")}
}

// NewURN builds a URN from a prefix and explicit id parts.
func NewURN(prefix string, idParts ...string) URN {
	return URN{prefix: prefix, idParts: idParts}
}

// Prefix returns the colon-joined namespace portion of the URN.
func (u URN) Prefix() string { return u.prefix }

// IDParts returns a copy of the URN's id parts.
func (u URN) IDParts() []string {
	parts := make([]string, len(u.idParts))
	copy(parts, u.idParts)
	return parts
}

// ID returns the URN's single id part. It fails for compound URNs; use
// IDParts for those.
func (u URN) ID() (string, error) {
	if len(u.idParts) != 1 {
		return "", fmt.Errorf("%w: %s has %d id parts, want 1", ErrInvalidURN, u, len(u.idParts))
	}
	return u.idParts[0], nil
}

// LastID returns the final id part. Compound event URNs embed the
// conversation id first and the event id last.
func (u URN) LastID() string {
	if len(u.idParts) == 0 {
		return ""
	}
	return u.idParts[len(u.idParts)-1]
}

// IDString returns the comma-joined id parts without the prefix. It is
// the basis for Equal and is suitable as a map key when URNs from
// different namespaces must collapse to one entity.
func (u URN) IDString() string { return strings.Join(u.idParts, ",") }

// Equal reports whether two URNs identify the same entity. The prefix
// is deliberately ignored; see the type comment.
func (u URN) Equal(other URN) bool { return u.IDString() == other.IDString() }

// IsZero reports whether the URN is the empty value.
func (u URN) IsZero() bool { return u.prefix == "" && len(u.idParts) == 0 }

func (u URN) String() string {
	if len(u.idParts) == 1 {
		return u.prefix + ":" + u.idParts[0]
	}
	return u.prefix + ":(" + strings.Join(u.idParts, ",") + ")"
}

// MarshalJSON encodes the URN as its string form.
func (u URN) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(u.String())
}

// UnmarshalJSON decodes a URN from a JSON string. null and "" produce
// the zero URN.
func (u *URN) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = URN{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal URN: %w", err)
	}
	if s == "" {
		*u = URN{}
		return nil
	}
	*u = ParseURN(s)
	return nil
}
