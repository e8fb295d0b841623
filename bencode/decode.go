package bencode

import (
	"github.com/pkg/errors"
)

// Decode parses a single bencode value starting at the beginning of data and
// returns it along with the number of bytes consumed. Trailing bytes after
// the value are not an error; callers that expect exactly one value and
// nothing else should compare the returned count to len(data).
func Decode(data []byte) (*Value, int, error) {
	v, n, err := decodeAt(data, 0)
	if err != nil {
		return nil, 0, err
	}
	return v, n, nil
}

// decodeAt decodes the value starting at data[start:] and returns the value
// plus the index just past it.
func decodeAt(data []byte, start int) (*Value, int, error) {
	if start >= len(data) {
		return nil, 0, errors.Wrap(ErrTruncatedInput, "expected a value")
	}

	switch c := data[start]; {
	case c == 'i':
		return decodeInt(data, start)
	case c == 'l':
		return decodeList(data, start)
	case c == 'd':
		return decodeDict(data, start)
	case c >= '0' && c <= '9':
		return decodeString(data, start)
	default:
		return nil, 0, errors.Wrapf(ErrBadDigit, "unexpected tag byte %q", c)
	}
}

// decodeString consumes "<len>:<bytes>".
func decodeString(data []byte, start int) (*Value, int, error) {
	colon := -1
	for i := start; i < len(data); i++ {
		if data[i] == ':' {
			colon = i
			break
		}
		if data[i] < '0' || data[i] > '9' {
			return nil, 0, errors.Wrap(ErrBadDigit, "malformed string length")
		}
	}
	if colon < 0 {
		return nil, 0, errors.Wrap(ErrTruncatedInput, "unterminated string length")
	}
	if colon == start {
		return nil, 0, errors.Wrap(ErrBadLength, "missing string length")
	}
	if data[start] == '0' && colon-start > 1 {
		return nil, 0, errors.Wrap(ErrBadLength, "leading zero in string length")
	}

	length := 0
	for i := start; i < colon; i++ {
		length = length*10 + int(data[i]-'0')
	}

	contentStart := colon + 1
	contentEnd := contentStart + length
	if length < 0 || contentEnd > len(data) {
		return nil, 0, errors.Wrap(ErrTruncatedInput, "string shorter than declared length")
	}

	return &Value{
		Kind: String,
		Str:  data[contentStart:contentEnd],
		Raw:  data[start:contentEnd],
	}, contentEnd, nil
}

// decodeInt consumes "i<decimal>e" and rejects leading zeros and "-0".
func decodeInt(data []byte, start int) (*Value, int, error) {
	i := start + 1
	end := -1
	for j := i; j < len(data); j++ {
		if data[j] == 'e' {
			end = j
			break
		}
	}
	if end < 0 {
		return nil, 0, errors.Wrap(ErrTruncatedInput, "unterminated integer")
	}

	digits := data[i:end]
	if len(digits) == 0 {
		return nil, 0, errors.Wrap(ErrBadDigit, "empty integer")
	}

	neg := false
	j := 0
	if digits[0] == '-' {
		neg = true
		j = 1
	}
	if j == len(digits) {
		return nil, 0, errors.Wrap(ErrBadDigit, "integer has no digits")
	}
	if digits[j] == '0' && len(digits)-j > 1 {
		return nil, 0, errors.Wrap(ErrBadDigit, "integer has a leading zero")
	}
	if neg && digits[j] == '0' {
		return nil, 0, errors.Wrap(ErrBadDigit, "negative zero is not allowed")
	}

	var n int64
	for ; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return nil, 0, errors.Wrapf(ErrBadDigit, "non-digit byte %q in integer", digits[j])
		}
		n = n*10 + int64(digits[j]-'0')
	}
	if neg {
		n = -n
	}

	return &Value{Kind: Integer, Int: n, Raw: data[start : end+1]}, end + 1, nil
}

// decodeList consumes "l<value>...e".
func decodeList(data []byte, start int) (*Value, int, error) {
	pos := start + 1
	var items []*Value
	for {
		if pos >= len(data) {
			return nil, 0, errors.Wrap(ErrTruncatedInput, "unterminated list")
		}
		if data[pos] == 'e' {
			pos++
			break
		}
		item, next, err := decodeAt(data, pos)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
		pos = next
	}
	return &Value{Kind: List, List: items, Raw: data[start:pos]}, pos, nil
}

// decodeDict consumes "d(<bstring><value>)...e", rejecting keys that are not
// strictly increasing in byte order.
func decodeDict(data []byte, start int) (*Value, int, error) {
	pos := start + 1
	var entries []DictEntry
	var prevKey []byte
	haveKey := false

	for {
		if pos >= len(data) {
			return nil, 0, errors.Wrap(ErrTruncatedInput, "unterminated dictionary")
		}
		if data[pos] == 'e' {
			pos++
			break
		}

		if data[pos] < '0' || data[pos] > '9' {
			return nil, 0, errors.Wrap(ErrBadDigit, "dictionary key is not a string")
		}
		keyVal, next, err := decodeString(data, pos)
		if err != nil {
			return nil, 0, err
		}
		pos = next

		if haveKey && compareBytes(keyVal.Str, prevKey) <= 0 {
			return nil, 0, errors.Wrapf(ErrBadKeyOrder, "key %q does not strictly follow %q", keyVal.Str, prevKey)
		}
		prevKey = keyVal.Str
		haveKey = true

		val, next2, err := decodeAt(data, pos)
		if err != nil {
			return nil, 0, err
		}
		pos = next2

		entries = append(entries, DictEntry{Key: keyVal.Str, Val: val})
	}

	return &Value{Kind: Dict, Entries: entries, Raw: data[start:pos]}, pos, nil
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
