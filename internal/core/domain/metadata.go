package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Limits applied before metadata is persisted.
const (
	MaxMetadataEntries  = 32
	MaxMetadataValueLen = 512
)

// MetadataEntry is one key/value pair of Metadata.
type MetadataEntry struct {
	Key   string
	Value string
}

// Metadata is an insertion-ordered string map attached to events and history
// entries. It encodes as a JSON object with keys in insertion order.
type Metadata []MetadataEntry

// NewMetadata builds metadata from alternating key/value arguments.
// A trailing key without value is ignored.
func NewMetadata(kv ...string) Metadata {
	var m Metadata
	for i := 0; i+1 < len(kv); i += 2 {
		m = m.Set(kv[i], kv[i+1])
	}
	return m
}

// Set replaces the value of key in place or appends it.
func (m Metadata) Set(key, value string) Metadata {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, MetadataEntry{Key: key, Value: value})
}

// Get returns the value stored under key.
func (m Metadata) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Merge returns a copy of m with every entry of other set on top.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m), len(m)+len(other))
	copy(out, m)
	for _, e := range other {
		out = out.Set(e.Key, e.Value)
	}
	return out
}

// Bounded truncates m to MaxMetadataEntries entries and every value to
// MaxMetadataValueLen bytes without splitting a UTF-8 sequence.
func (m Metadata) Bounded() Metadata {
	n := len(m)
	if n > MaxMetadataEntries {
		n = MaxMetadataEntries
	}
	out := make(Metadata, 0, n)
	for _, e := range m[:n] {
		out = append(out, MetadataEntry{Key: e.Key, Value: truncate(e.Value, MaxMetadataValueLen)})
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Non-string values are kept as
// their raw JSON text.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata: expected object, got %v", tok)
	}

	out := Metadata{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("metadata key: %w", err)
		}
		key, _ := kt.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata value %q: %w", key, err)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		out = append(out, MetadataEntry{Key: key, Value: s})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	*m = out
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
