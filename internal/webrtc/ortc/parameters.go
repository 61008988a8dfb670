package ortc

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
)

// Codec specific parameters (fmtp). Values are either strings or numbers; numbers
// decoded from JSON arrive as float64.
type Parameters map[string]any

func (p Parameters) String(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func (p Parameters) Int(key string, fallback int) int {
	raw := p.String(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}

func (p Parameters) Clone() Parameters {
	if p == nil {
		return Parameters{}
	}

	return maps.Clone(p)
}

// Fmtp renders parameters as an SDP fmtp value, keys sorted for stable output.
func (p Parameters) Fmtp() string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+p.String(key))
	}

	return strings.Join(pairs, ";")
}

// ParseFmtp parses "a=1;b=x" into parameters. Integer looking values become ints,
// except identifiers that are hex strings by definition.
func ParseFmtp(value string) Parameters {
	parameters := Parameters{}

	for pair := range strings.SplitSeq(value, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, raw, found := strings.Cut(pair, "=")
		if !found {
			parameters[key] = ""
			continue
		}

		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)

		if number, err := strconv.Atoi(raw); err == nil && key != "profile-level-id" && strconv.Itoa(number) == raw {
			parameters[key] = number
			continue
		}

		parameters[key] = raw
	}

	return parameters
}
