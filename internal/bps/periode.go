package bps

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// periodeKeys are the object keys the catalogue has been observed to use for
// the periode value, in preference order.
var periodeKeys = []string{"periode", "periode_merge", "value", "kode", "kode_periode"}

// wrapperKeys are the envelope keys some catalogue responses nest the list
// under.
var wrapperKeys = []string{"data", "rows", "items", "result"}

// extractPeriodes pulls periode identifiers out of a catalogue payload. The
// upstream answers with a bare list of strings, a list of objects, or either
// of those wrapped in an envelope; all are accepted. Order is preserved and
// duplicates are dropped.
func extractPeriodes(payload []byte) ([]string, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("periode catalogue: %w", err)
	}

	sortFallback := false
	if obj, ok := raw.(map[string]any); ok {
		found := false
		for _, key := range wrapperKeys {
			if child, ok := obj[key].([]any); ok {
				raw = child
				found = true
				break
			}
		}
		if !found {
			// Map iteration order is unstable, so this shape gets sorted
			// newest-first below instead of trusting upstream order.
			values := make([]any, 0, len(obj))
			for _, v := range obj {
				values = append(values, v)
			}
			raw = values
			sortFallback = true
		}
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("periode catalogue: expected a list, got %T", raw)
	}

	seen := map[string]bool{}
	var periodes []string
	for _, item := range list {
		value := derivePeriode(item)
		if value == "" || seen[value] {
			continue
		}
		periodes = append(periodes, value)
		seen[value] = true
	}
	if sortFallback {
		sort.Sort(sort.Reverse(sort.StringSlice(periodes)))
	}
	return periodes, nil
}

func derivePeriode(item any) string {
	switch v := item.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		for _, key := range periodeKeys {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
