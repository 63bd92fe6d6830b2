package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Reserved field names shared by filters and sinks.
const (
	KeyMessage    = "@message"
	KeyTimestamp  = "@timestamp"
	KeySourceHost = "@source_host"
	KeyFields     = "@fields"
	KeyTags       = "@tags"
)

// Event is a single structured log record, with potentially many fields.
type Event map[string]any

func (e Event) Has(name string) bool {
	_, ok := e[name]
	return ok
}

func (e Event) AsString(name string) (string, bool) {
	if !e.Has(name) {
		return "", false
	}
	return stringify(e[name]), true
}

func (e Event) AsFloat(name string) (float64, bool) {
	if !e.Has(name) {
		return 0, false
	}
	return floatify(e[name])
}

// Lookup resolves a field path such as "@fields.status". A literal key wins
// over traversal, so an event carrying the key "a.b" shadows the nested "b"
// of map "a".
func (e Event) Lookup(path string) (any, bool) {
	if v, ok := e[path]; ok {
		return v, true
	}
	var cur any = map[string]any(e)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func (e Event) LookupString(path string) (string, bool) {
	v, ok := e.Lookup(path)
	if !ok {
		return "", false
	}
	return stringify(v), true
}

func (e Event) LookupFloat(path string) (float64, bool) {
	v, ok := e.Lookup(path)
	if !ok {
		return 0, false
	}
	return floatify(v)
}

// EnsureFields returns the event's nested field map, creating it when absent.
// A value of any other type under the fields key is replaced.
func (e Event) EnsureFields() map[string]any {
	if m, ok := e[KeyFields].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	e[KeyFields] = m
	return m
}

// AppendTags adds tags to the event's tag list, creating it when absent.
// Decoded JSON yields []any tag lists, fresh ones are []string; both are
// extended in place. A value of any other type under the tags key is
// replaced.
func (e Event) AppendTags(tags ...string) {
	switch cur := e[KeyTags].(type) {
	case []string:
		e[KeyTags] = append(cur, tags...)
	case []any:
		for _, t := range tags {
			cur = append(cur, t)
		}
		e[KeyTags] = cur
	default:
		fresh := make([]string, 0, len(tags))
		e[KeyTags] = append(fresh, tags...)
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Event:
		return m, true
	}
	return nil, false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", v)
}

func floatify(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
