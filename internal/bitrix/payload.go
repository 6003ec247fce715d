package bitrix

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
)

// Field looks a value up under the canonical name and its casing variants
// (name, NAME, name lowered, Name). Remote payload keys are not
// contract-stable: the same portal has been seen answering with "id", "ID"
// and "Id".
func Field(record map[string]any, name string) any {
	for _, variant := range []string{name, strings.ToUpper(name), strings.ToLower(name), capitalize(name)} {
		if v, ok := record[variant]; ok {
			return v
		}
	}
	return nil
}

// FieldString is Field rendered as a trimmed string, empty when absent.
func FieldString(record map[string]any, name string) string {
	v := Field(record, name)
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// IntValue coerces a decoded JSON value to int64. Numeric fields arrive as
// numbers or numeral strings depending on the endpoint.
func IntValue(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// ActorIDs flattens a collaborator/actor field into a list of user ids.
// The field has been observed as a list of numbers, a list of objects
// carrying an id-like key, a comma-joined string, and a map whose keys are
// the ids. Unparsable entries are dropped, never fatal.
func ActorIDs(raw any) []int {
	if raw == nil {
		return nil
	}

	switch v := raw.(type) {
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch it := item.(type) {
			case map[string]any:
				for _, key := range []string{"ID", "id", "USER_ID", "userId"} {
					if id, ok := IntValue(it[key]); ok {
						out = append(out, int(id))
						break
					}
				}
			default:
				if id, ok := IntValue(item); ok {
					out = append(out, int(id))
				}
			}
		}
		return out

	case string:
		var out []int
		for _, part := range strings.Split(strings.ReplaceAll(v, " ", ""), ",") {
			if part == "" {
				continue
			}
			if id, ok := IntValue(part); ok {
				out = append(out, int(id))
			}
		}
		return out

	case map[string]any:
		var out []int
		for key := range v {
			if id, ok := IntValue(key); ok {
				out = append(out, int(id))
			}
		}
		return out
	}

	return nil
}

// entryShape tries to extract a list of entry records from one observed
// response layout. Matchers are tried in order; the first hit wins.
type entryShape func(any) ([]map[string]any, bool)

var entryShapes = []entryShape{
	shapeBareList,
	shapeResultList,
	shapeResultItems("items"),
	shapeResultItems("elapsedItems"),
	shapeResultAnyList,
}

// EntryList normalizes a task.elapseditem.getlist response to a flat list
// of entry maps. Accepts the result nested one or two levels, a bare list,
// or the whole response JSON-encoded as a string. An error indicator inside
// a batch slot yields an empty list with a diagnostic.
func EntryList(response any) []map[string]any {
	if response == nil {
		return nil
	}
	if s, ok := response.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil
		}
		response = decoded
	}

	if m, ok := response.(map[string]any); ok {
		if apiErr := errorIn(m); apiErr != nil {
			log.Printf("bitrix elapsed-item slot carried an error: %v", apiErr)
			return nil
		}
	}

	for _, match := range entryShapes {
		if entries, ok := match(response); ok {
			return entries
		}
	}
	return nil
}

func shapeBareList(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	return recordList(list), true
}

func shapeResultList(v any) ([]map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := m["result"].([]any)
	if !ok {
		return nil, false
	}
	return recordList(list), true
}

func shapeResultItems(key string) entryShape {
	return func(v any) ([]map[string]any, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		inner, ok := m["result"].(map[string]any)
		if !ok {
			return nil, false
		}
		list, ok := inner[key].([]any)
		if !ok {
			return nil, false
		}
		return recordList(list), true
	}
}

// shapeResultAnyList is the last resort: any list-valued field inside the
// result object.
func shapeResultAnyList(v any) ([]map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	inner, ok := m["result"].(map[string]any)
	if !ok {
		return nil, false
	}
	for _, val := range inner {
		if list, ok := val.([]any); ok {
			return recordList(list), true
		}
	}
	return nil, false
}

func recordList(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
