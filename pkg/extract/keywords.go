package extract

import (
	"encoding/json"
	"strings"

	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

// ParseKeywords accepts a comma-separated string, a list of strings, or a list of
// objects carrying a "name", and returns distinct trimmed labels in first-seen order.
// Any other shape yields no keywords.
func ParseKeywords(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return MergeKeywords(keywordValues(v))
}

func keywordValues(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Split(t, ",")
	case []any:
		var out []string
		for _, item := range t {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				if name, ok := it["name"].(string); ok {
					out = append(out, name)
				}
			}
		}
		return out
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return []string{name}
		}
	}
	return nil
}

// MergeKeywords concatenates label lists, collapsing whitespace and dropping blanks and
// case-insensitive duplicates.
func MergeKeywords(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, kw := range list {
			kw = utils.CollapseSpace(kw)
			if kw == "" {
				continue
			}
			key := strings.ToLower(kw)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}
