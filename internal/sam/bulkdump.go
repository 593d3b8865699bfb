package sam

import (
	"encoding/json"
	"sort"

	"github.com/opsarka/samradar/internal/errs"
)

// dumpVariant is one known shape of the bulk dump. Variants are tried in
// order; the first that yields an opportunities array wins.
type dumpVariant struct {
	name    string
	extract func(any) ([]map[string]any, bool)
}

var dumpVariants = []dumpVariant{
	{name: "opportunitiesData key", extract: namedKey("opportunitiesData")},
	{name: "opportunities key", extract: namedKey("opportunities")},
	{name: "data key", extract: namedKey("data")},
	{name: "results key", extract: namedKey("results")},
	{name: "bare array", extract: bareArray},
	{name: "heuristic array field", extract: heuristicArray},
}

// ParseBulkDump locates the opportunities array inside one raw dump,
// tolerating the schema variants SAM.gov has shipped over time. Invalid JSON
// or an absent array is a non-retryable data error for the whole dump.
func ParseBulkDump(data []byte) ([]map[string]any, string, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, "", errs.Data("parse bulk dump", err)
	}

	for _, variant := range dumpVariants {
		if elems, ok := variant.extract(root); ok {
			return elems, variant.name, nil
		}
	}

	return nil, "", errs.Dataf("parse bulk dump", "no opportunities array found in payload")
}

func namedKey(key string) func(any) ([]map[string]any, bool) {
	return func(root any) ([]map[string]any, bool) {
		m, ok := root.(map[string]any)
		if !ok {
			return nil, false
		}
		return elementList(m[key])
	}
}

func bareArray(root any) ([]map[string]any, bool) {
	return elementList(root)
}

// heuristicArray picks the first list-valued field whose elements look like
// opportunities, i.e. carry an identifier key. Keys are visited in sorted
// order so detection is deterministic.
func heuristicArray(root any) ([]map[string]any, bool) {
	m, ok := root.(map[string]any)
	if !ok {
		return nil, false
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		elems, ok := elementList(m[k])
		if !ok || len(elems) == 0 {
			continue
		}
		if hasIdentifier(elems[0]) {
			return elems, true
		}
	}
	return nil, false
}

func elementList(v any) ([]map[string]any, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}

	elems := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			// Non-object entries are tolerated, not fatal.
			continue
		}
		elems = append(elems, m)
	}
	return elems, true
}

func hasIdentifier(m map[string]any) bool {
	for _, k := range identifierKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
