package bencode

import (
	"bytes"
	"sort"
	"strconv"
)

// Encode produces the canonical bencode serialization of v: strings as
// "<len>:<bytes>", integers as "i<decimal>e" with no leading zeros or "-0",
// lists as "l...e", and dictionaries as "d...e" with keys emitted in
// strictly increasing byte order regardless of the order they were built or
// decoded in. Encode(Decode(x)) reproduces x byte-for-byte for any
// well-formed x, since a dictionary that decoded successfully already has
// its entries in increasing order.
func Encode(v *Value) []byte {
	var buf bytes.Buffer
	encodeInto(&buf, v)
	return buf.Bytes()
}

func encodeInto(buf *bytes.Buffer, v *Value) {
	switch v.Kind {
	case String:
		buf.WriteString(strconv.Itoa(len(v.Str)))
		buf.WriteByte(':')
		buf.Write(v.Str)
	case Integer:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteByte('e')
	case List:
		buf.WriteByte('l')
		for _, item := range v.List {
			encodeInto(buf, item)
		}
		buf.WriteByte('e')
	case Dict:
		buf.WriteByte('d')
		entries := sortedEntries(v.Entries)
		for _, e := range entries {
			encodeInto(buf, &Value{Kind: String, Str: e.Key})
			encodeInto(buf, e.Val)
		}
		buf.WriteByte('e')
	}
}

// sortedEntries returns entries sorted by key byte order, without mutating
// the input. Decoded dictionaries are already in this order (decode rejects
// anything else); this only matters for dictionaries built by hand.
func sortedEntries(entries []DictEntry) []DictEntry {
	sorted := make([]DictEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareBytes(sorted[i].Key, sorted[j].Key) < 0
	})
	return sorted
}
