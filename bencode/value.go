// Package bencode implements the bencode codec used by metainfo files and
// tracker responses: byte strings, integers, lists and ordered dictionaries.
//
// The decoder keeps the exact source bytes of every decoded value (Value.Raw)
// so callers that need a byte-identical re-encoding of a sub-tree - the
// metainfo package's info-hash computation, most notably - never have to
// round-trip through the encoder at all.
package bencode

// Kind identifies which of the four bencode shapes a Value holds.
type Kind int

const (
	String Kind = iota
	Integer
	List
	Dict
)

// DictEntry is one key/value pair of a decoded dictionary, kept in the order
// the keys appeared on the wire. Decode enforces that this order is strictly
// increasing lexicographic byte order, so it is also encode order.
type DictEntry struct {
	Key []byte
	Val *Value
}

// Value is a decoded bencode value. Exactly one of Str, Int, List or Entries
// is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	Str     []byte
	Int     int64
	List    []*Value
	Entries []DictEntry

	// Raw holds the exact slice of the input this value was decoded from.
	// Populated by Decode; nil for values built programmatically.
	Raw []byte
}

// Get looks up a key in a Dict value. Returns nil, false if v is not a Dict
// or the key is absent.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.Kind != Dict {
		return nil, false
	}
	for _, e := range v.Entries {
		if string(e.Key) == key {
			return e.Val, true
		}
	}
	return nil, false
}

// GetString returns the string at key, or ok=false if absent or not a string.
func (v *Value) GetString(key string) (string, bool) {
	val, ok := v.Get(key)
	if !ok || val.Kind != String {
		return "", false
	}
	return string(val.Str), true
}

// GetInt returns the integer at key, or ok=false if absent or not an integer.
func (v *Value) GetInt(key string) (int64, bool) {
	val, ok := v.Get(key)
	if !ok || val.Kind != Integer {
		return 0, false
	}
	return val.Int, true
}

// GetList returns the list at key, or ok=false if absent or not a list.
func (v *Value) GetList(key string) ([]*Value, bool) {
	val, ok := v.Get(key)
	if !ok || val.Kind != List {
		return nil, false
	}
	return val.List, true
}

// GetDict returns the dict value at key, or ok=false if absent or not a dict.
func (v *Value) GetDict(key string) (*Value, bool) {
	val, ok := v.Get(key)
	if !ok || val.Kind != Dict {
		return nil, false
	}
	return val, true
}

// Literal returns the exact source bytes this value was decoded from. For a
// Value not produced by Decode, Raw is nil and Literal returns the empty
// string; callers that may hold a programmatically built Value should use
// Encode instead.
func (v *Value) Literal() string {
	return string(v.Raw)
}
