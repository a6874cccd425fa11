package detection

import (
	"sort"
	"strings"
)

var categoryByLabel = map[string]string{
	"plastic_bottle": "plastic",
	"plastic_bag":    "plastic",
	"plastic":        "plastic",
	"food_waste":     "organic",
	"organic":        "organic",
	"cardboard":      "cardboard",
	"paper":          "paper",
	"glass_bottle":   "glass",
	"glass":          "glass",
	"metal_can":      "metal",
	"metal":          "metal",
	"e_waste":        "electronic",
}

// Category maps a detector class label to a waste category. Unknown labels
// fall back to their first word.
func Category(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.ReplaceAll(l, "-", "_")
	l = strings.ReplaceAll(l, " ", "_")
	if c, ok := categoryByLabel[l]; ok {
		return c
	}
	if i := strings.IndexByte(l, '_'); i > 0 {
		return l[:i]
	}
	return l
}

// WasteTypes derives the sorted category set of a result, merged with any
// categories the detector reported directly.
func WasteTypes(r Result, reported []string) []string {
	set := make(map[string]struct{})
	for _, o := range r.Objects {
		if c := Category(o.ClassLabel); c != "" {
			set[c] = struct{}{}
		}
	}
	for _, t := range reported {
		if c := Category(t); c != "" {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
