package models

import (
	"sort"
	"strings"

	"github.com/gosimple/slug"
)

// NormalizeLanguage turns a display name like "Central Bikol" into the
// canonical identifier "central-bikol"
func NormalizeLanguage(language string) string {
	return slug.Make(strings.TrimSpace(language))
}

// NormalizeLanguages normalizes, de-duplicates and sorts a language set.
// Blank entries are dropped.
func NormalizeLanguages(languages []string) []string {
	seen := make(map[string]struct{}, len(languages))
	result := make([]string, 0, len(languages))
	for _, l := range languages {
		n := NormalizeLanguage(l)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

// LanguageKey identifies a language set independent of order and spelling,
// e.g. ["Tagalog", "cebuano"] -> "cebuano,tagalog"
func LanguageKey(languages []string) string {
	return strings.Join(NormalizeLanguages(languages), ",")
}

// CoversLanguages reports whether every language in want is present in have
func CoversLanguages(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, l := range NormalizeLanguages(have) {
		set[l] = struct{}{}
	}
	for _, l := range NormalizeLanguages(want) {
		if _, ok := set[l]; !ok {
			return false
		}
	}
	return true
}
