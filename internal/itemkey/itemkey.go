// Package itemkey parses raw bilibili video identifiers into the canonical key
// used for cache entries, download files, and report names.
package itemkey

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"quickview/internal/services"
)

const (
	prefix     = "BV"
	minBodyLen = 8
	maxBodyLen = 16
	urlMarker  = "bilibili.com/video/"
)

// embeddedID finds a standalone BV identifier inside free text.
var embeddedID = regexp.MustCompile(`(?:^|[^0-9A-Za-z_-])([Bb][Vv][0-9A-Za-z]{10})(?:$|[^0-9A-Za-z_-])`)

// DefaultVideoBaseURL is the public watch page prefix.
const DefaultVideoBaseURL = "https://www.bilibili.com/video"

// Key is a canonical BV identifier such as BV1xx411c7mD.
type Key string

// String returns the key text.
func (k Key) String() string { return string(k) }

// URL returns the public watch page for the key.
func (k Key) URL() string {
	return VideoURL(DefaultVideoBaseURL, k)
}

// VideoURL joins a watch page prefix and a key.
func VideoURL(baseURL string, k Key) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultVideoBaseURL
	}
	return base + "/" + string(k)
}

// Parse normalizes raw input into a Key. It accepts a bare identifier with or
// without the BV prefix, full-width input, a bilibili watch URL, or text that
// contains a standalone BV identifier. Invalid input returns an error wrapping
// services.ErrValidation.
func Parse(raw string) (Key, error) {
	value := strings.TrimSpace(width.Narrow.String(raw))
	if value == "" {
		return "", invalid(raw, "identifier is empty")
	}
	if idx := strings.Index(strings.ToLower(value), urlMarker); idx >= 0 {
		value = value[idx+len(urlMarker):]
		if cut := strings.IndexAny(value, "/?#"); cut >= 0 {
			value = value[:cut]
		}
	}

	key, reason := parseBody(value)
	if reason == "" {
		return key, nil
	}
	if match := embeddedID.FindStringSubmatch(value); match != nil {
		if found, bad := parseBody(match[1]); bad == "" {
			return found, nil
		}
	}
	return "", invalid(raw, reason)
}

// parseBody validates a single identifier token. It returns a non-empty
// reason when the token is not an identifier.
func parseBody(value string) (Key, string) {
	body := value
	if len(body) >= len(prefix) && strings.EqualFold(body[:len(prefix)], prefix) {
		body = body[len(prefix):]
	}
	if len(body) < minBodyLen || len(body) > maxBodyLen {
		return "", fmt.Sprintf("identifier body must be %d-%d characters, got %d", minBodyLen, maxBodyLen, len(body))
	}
	for _, r := range body {
		if !isAlphanumeric(r) {
			return "", fmt.Sprintf("identifier contains invalid character %q", r)
		}
	}
	return Key(prefix + body), ""
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(raw string) Key {
	key, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return key
}

// ParseAll parses each raw value and drops duplicates while keeping first-seen
// order. The first invalid value aborts with its error.
func ParseAll(raws []string) ([]Key, error) {
	keys := make([]Key, 0, len(raws))
	for _, candidate := range ParseEach(raws) {
		if candidate.Err != nil {
			return nil, candidate.Err
		}
		keys = append(keys, candidate.Key)
	}
	return keys, nil
}

// Candidate is one raw input and the outcome of parsing it.
type Candidate struct {
	Raw string
	Key Key
	Err error
}

// Label names the candidate for display: the key when it parsed, otherwise
// the trimmed raw text.
func (c Candidate) Label() string {
	if c.Err == nil {
		return c.Key.String()
	}
	return strings.TrimSpace(c.Raw)
}

// ParseEach parses every raw value independently, keeping invalid ones with
// their error. Repeats of a key, or of the same invalid text, are dropped
// after their first appearance.
func ParseEach(raws []string) []Candidate {
	type seenKey struct {
		label   string
		invalid bool
	}
	out := make([]Candidate, 0, len(raws))
	seen := make(map[seenKey]struct{}, len(raws))
	for _, raw := range raws {
		key, err := Parse(raw)
		candidate := Candidate{Raw: raw, Key: key, Err: err}
		id := seenKey{label: candidate.Label(), invalid: err != nil}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func isAlphanumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func invalid(raw, message string) error {
	return services.Wrap(services.ErrValidation, "itemkey", "parse", fmt.Sprintf("%s (input %q)", message, raw), nil)
}
