package gateway

import (
	"net/url"
	"strings"
)

// Value is one decoded query value. A key written without "=" yields a value
// with Present unset, which is distinct from an explicit empty value.
type Value struct {
	Text    string
	Present bool
}

// Query is an ordered multimap of decoded query parameters. Keys keep the
// order of their first appearance and every value is retained.
type Query struct {
	keys   []string
	values map[string][]Value
}

// ParseQuery decodes a raw query string. Keys and values are URL-decoded
// with "+" read as a space; a segment holding an undecodable escape is kept
// verbatim. Empty segments are skipped.
func ParseQuery(raw string) Query {
	q := Query{values: make(map[string][]Value)}
	raw = strings.TrimPrefix(raw, "?")
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(segment, "=")
		key := unescape(rawKey)
		value := Value{}
		if hasValue {
			value = Value{Text: unescape(rawValue), Present: true}
		}
		if _, seen := q.values[key]; !seen {
			q.keys = append(q.keys, key)
		}
		q.values[key] = append(q.values[key], value)
	}
	return q
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Len returns the number of distinct keys.
func (q Query) Len() int {
	return len(q.keys)
}

// Keys returns the distinct keys in first-appearance order.
func (q Query) Keys() []string {
	return append([]string(nil), q.keys...)
}

// Values returns every value recorded for key.
func (q Query) Values(key string) []Value {
	return append([]Value(nil), q.values[key]...)
}

// Has reports whether key appeared at all.
func (q Query) Has(key string) bool {
	_, ok := q.values[key]
	return ok
}

// Get returns the first value of key. The boolean is false when the key is
// missing or its first occurrence carried no "=".
func (q Query) Get(key string) (string, bool) {
	values := q.values[key]
	if len(values) == 0 || !values[0].Present {
		return "", false
	}
	return values[0].Text, true
}
