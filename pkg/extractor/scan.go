package extractor

import (
	"strings"
)

// balancedAt returns the text of the JSON object or array that opens at
// text[start], up to and including its matching close. Brackets inside
// string literals are ignored and backslash escapes are honored.
// ok is false when text[start] is not an opener or the value never closes.
func balancedAt(text string, start int) (string, bool) {
	if start < 0 || start >= len(text) {
		return "", false
	}

	open := text[start]
	var closer byte
	switch open {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// skipSpace returns the index of the first non-whitespace byte at or after i
func skipSpace(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// assignedObjects finds every `marker = {...}` in text and returns the object literals
func assignedObjects(text, marker string) []string {
	var objects []string

	offset := 0
	for {
		idx := strings.Index(text[offset:], marker)
		if idx < 0 {
			return objects
		}
		pos := offset + idx + len(marker)
		offset = pos

		pos = skipSpace(text, pos)
		if pos >= len(text) || text[pos] != '=' {
			continue
		}
		pos = skipSpace(text, pos+1)

		if obj, ok := balancedAt(text, pos); ok && obj[0] == '{' {
			objects = append(objects, obj)
		}
	}
}

// keyedArrays finds every `"key": [...]` in text and returns the array literals
func keyedArrays(text, key string) []string {
	var arrays []string
	needle := `"` + key + `"`

	offset := 0
	for {
		idx := strings.Index(text[offset:], needle)
		if idx < 0 {
			return arrays
		}
		pos := offset + idx + len(needle)
		offset = pos

		pos = skipSpace(text, pos)
		if pos >= len(text) || text[pos] != ':' {
			continue
		}
		pos = skipSpace(text, pos+1)

		if arr, ok := balancedAt(text, pos); ok && arr[0] == '[' {
			arrays = append(arrays, arr)
		}
	}
}

// outerBraces returns text from the first '{' to the last '}'
func outerBraces(text string) (string, bool) {
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return "", false
	}
	return text[first : last+1], true
}
