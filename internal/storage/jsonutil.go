package storage

import "encoding/json"

// encodeJSONList normalizes a string slice to its JSON array form, never
// null, matching the invariant that list-valued JSON fields are always
// valid JSON.
func encodeJSONList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeJSONList parses a JSON array of strings, treating an empty string
// as an empty list.
func decodeJSONList(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
