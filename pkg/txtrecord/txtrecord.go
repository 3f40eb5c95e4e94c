package txtrecord

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxEntryLen is the largest payload a single length-prefixed block can carry.
const MaxEntryLen = 255

// ErrMalformed is matched by every CodecError via errors.Is.
var ErrMalformed = errors.New("malformed TXT record")

// CodecError reports input that cannot be encoded or decoded.
type CodecError struct {
	// Offset is the byte offset (decode) or entry index (encode) at fault.
	Offset int

	// Reason describes the problem.
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("txt record: %s (at %d)", e.Reason, e.Offset)
}

// Is makes errors.Is(err, ErrMalformed) hold for any CodecError.
func (e *CodecError) Is(target error) bool {
	return target == ErrMalformed
}

// Entry is one key with an optional value.
// A nil Value means the key was given without "="; a non-nil empty Value
// means "key=" with nothing after it.
type Entry struct {
	Key   string
	Value []byte
}

// HasValue reports whether the entry carries a value (possibly empty).
func (e Entry) HasValue() bool {
	return e.Value != nil
}

// payloadLen is the encoded block length without the length byte.
func (e Entry) payloadLen() int {
	n := len(e.Key)
	if e.Value != nil {
		n += 1 + len(e.Value)
	}
	return n
}

// Record is an ordered set of TXT entries.
type Record []Entry

// Get returns the value for key and whether the key is present.
func (r Record) Get(key string) ([]byte, bool) {
	for _, e := range r {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Map flattens the record into a string map. Keys without a value map to "".
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, e := range r {
		m[e.Key] = string(e.Value)
	}
	return m
}

// String renders the record as space separated key[=value] pairs.
func (r Record) String() string {
	parts := make([]string, 0, len(r))
	for _, e := range r {
		if e.HasValue() {
			parts = append(parts, e.Key+"="+string(e.Value))
		} else {
			parts = append(parts, e.Key)
		}
	}
	return strings.Join(parts, " ")
}

// FromMap builds a record from a string map, sorted by key so the encoding
// is deterministic.
func FromMap(m map[string]string) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := make(Record, 0, len(keys))
	for _, k := range keys {
		r = append(r, Entry{Key: k, Value: []byte(m[k])})
	}
	return r
}

// Encode serializes the record into DNS TXT wire format.
// An empty record encodes as a single zero byte, the minimal valid TXT rdata.
func Encode(r Record) ([]byte, error) {
	if len(r) == 0 {
		return []byte{0}, nil
	}

	seen := make(map[string]struct{}, len(r))
	size := 0
	for i, e := range r {
		if e.Key == "" {
			return nil, &CodecError{Offset: i, Reason: "empty key"}
		}
		if strings.IndexByte(e.Key, '=') >= 0 {
			return nil, &CodecError{Offset: i, Reason: fmt.Sprintf("key %q contains '='", e.Key)}
		}
		if _, dup := seen[e.Key]; dup {
			return nil, &CodecError{Offset: i, Reason: fmt.Sprintf("duplicate key %q", e.Key)}
		}
		seen[e.Key] = struct{}{}

		n := e.payloadLen()
		if n > MaxEntryLen {
			return nil, &CodecError{Offset: i, Reason: fmt.Sprintf("entry %q is %d bytes, limit is %d", e.Key, n, MaxEntryLen)}
		}
		size += 1 + n
	}

	buf := make([]byte, 0, size)
	for _, e := range r {
		buf = append(buf, byte(e.payloadLen()))
		buf = append(buf, e.Key...)
		if e.Value != nil {
			buf = append(buf, '=')
			buf = append(buf, e.Value...)
		}
	}
	return buf, nil
}

// Decode parses DNS TXT wire format into a record.
// Zero-length blocks are skipped. When a key repeats, the first occurrence
// wins and later ones are ignored.
func Decode(b []byte) (Record, error) {
	r := Record{}
	seen := make(map[string]struct{})

	for off := 0; off < len(b); {
		n := int(b[off])
		start := off + 1
		end := start + n
		if end > len(b) {
			return nil, &CodecError{Offset: off, Reason: fmt.Sprintf("block length %d exceeds remaining %d bytes", n, len(b)-start)}
		}
		off = end
		if n == 0 {
			continue
		}

		block := b[start:end]
		var e Entry
		if i := bytes.IndexByte(block, '='); i >= 0 {
			e.Key = string(block[:i])
			e.Value = append([]byte{}, block[i+1:]...)
		} else {
			e.Key = string(block)
		}

		if _, dup := seen[e.Key]; dup {
			continue
		}
		seen[e.Key] = struct{}{}
		r = append(r, e)
	}

	return r, nil
}

// Split breaks wire format into its raw strings, one per block.
// Zero-length blocks are dropped.
func Split(b []byte) ([]string, error) {
	var out []string
	for off := 0; off < len(b); {
		n := int(b[off])
		start := off + 1
		end := start + n
		if end > len(b) {
			return nil, &CodecError{Offset: off, Reason: fmt.Sprintf("block length %d exceeds remaining %d bytes", n, len(b)-start)}
		}
		if n > 0 {
			out = append(out, string(b[start:end]))
		}
		off = end
	}
	return out, nil
}

// Join is the inverse of Split. No strings yields the single zero byte.
func Join(strs []string) ([]byte, error) {
	if len(strs) == 0 {
		return []byte{0}, nil
	}

	var buf []byte
	for i, s := range strs {
		if len(s) > MaxEntryLen {
			return nil, &CodecError{Offset: i, Reason: fmt.Sprintf("string is %d bytes, limit is %d", len(s), MaxEntryLen)}
		}
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}
