package rules

import (
	"strconv"
	"strings"
)

// LookupField resolves a dot path with optional bracketed array indices
// against a record, e.g. "contact.emails[0].address". An unresolvable path
// returns (nil, false); it never panics.
func LookupField(record map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return record, record != nil
	}

	var current interface{} = record
	for _, segment := range strings.Split(path, ".") {
		key, indices, ok := parseSegment(segment)
		if !ok {
			return nil, false
		}

		if key != "" {
			m, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			current, ok = m[key]
			if !ok {
				return nil, false
			}
		}

		for _, idx := range indices {
			list, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(list) {
				return nil, false
			}
			current = list[idx]
		}
	}
	return current, true
}

// parseSegment splits "emails[0][1]" into its key and index chain.
func parseSegment(segment string) (key string, indices []int, ok bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, nil, segment != ""
	}

	key = segment[:open]
	rest := segment[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		closeIdx := strings.IndexByte(rest, ']')
		if closeIdx < 0 {
			return "", nil, false
		}
		n, err := strconv.Atoi(rest[1:closeIdx])
		if err != nil {
			return "", nil, false
		}
		indices = append(indices, n)
		rest = rest[closeIdx+1:]
	}
	return key, indices, true
}
