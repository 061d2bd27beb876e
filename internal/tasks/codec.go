package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Encode serializes the list as a JSON array of {id, text, completed}.
func Encode(list []Task) ([]byte, error) {
	if list == nil {
		list = []Task{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return data, nil
}

// Decode parses a stored JSON array. Blank or "null" input yields ErrNoData.
func Decode(data []byte) ([]Task, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, ErrNoData
	}
	var list []Task
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return list, nil
}

// sanitize restores list invariants on data read from a store: text is trimmed and
// non-empty, ids are present and unique. The first occurrence of an id wins.
func sanitize(list []Task) (out []Task, dropped int) {
	out = make([]Task, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, t := range list {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text == "" {
			dropped++
			continue
		}
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if _, dup := seen[t.ID]; dup {
			dropped++
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out, dropped
}
