package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"prdgen/internal/domain"
)

// Rule describes what a single model response must satisfy before its
// content may enter a manifest.
type Rule struct {
	// RequiredKeys must all be present at the top level of the extracted
	// JSON object.
	RequiredKeys []string

	// CoverageField names a top-level array of objects; CoverageKey names
	// the string field inside each element whose values, collected over
	// the array, must exactly cover CoverageSet, each value appearing at
	// most once. Empty CoverageField disables the check.
	CoverageField string
	CoverageKey   string
	CoverageSet   []string

	// UniqueKey names a string field inside each coverage element whose
	// values must not repeat across the array. Empty disables the check.
	UniqueKey string

	// ForbiddenTerms are rejected on word boundaries anywhere in the raw
	// text of string values reachable from the object.
	ForbiddenTerms []string
}

// Validate checks a raw model response against a rule. It never repairs
// content; a failed result carries enough structure for the retry
// controller to phrase a repair hint.
func Validate(raw string, rule Rule) domain.ValidationResult {
	obj := ExtractJSON(raw)
	if obj == nil {
		return domain.Invalid(domain.FailMalformed, nil, nil, "no parsable JSON object in response")
	}

	var missing []string
	for _, key := range rule.RequiredKeys {
		if _, ok := obj[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.Invalid(domain.FailIncomplete, missing, nil,
			fmt.Sprintf("missing required keys: %s", strings.Join(missing, ", ")))
	}

	if rule.CoverageField != "" {
		uncovered, dupes, detail := checkCoverage(obj, rule)
		switch {
		case detail != "":
			return domain.Invalid(domain.FailIncomplete, uncovered, nil, detail)
		case len(uncovered) > 0:
			return domain.Invalid(domain.FailIncomplete, uncovered, nil,
				fmt.Sprintf("uncovered entries: %s", strings.Join(uncovered, ", ")))
		case len(dupes) > 0:
			return domain.ValidationResult{
				Kind:       domain.FailIncomplete,
				Duplicates: dupes,
				Detail:     fmt.Sprintf("entries listed more than once: %s", strings.Join(dupes, ", ")),
			}
		}
	}

	if len(rule.ForbiddenTerms) > 0 {
		if hits := findForbidden(obj, rule.ForbiddenTerms); len(hits) > 0 {
			sort.Strings(hits)
			return domain.Invalid(domain.FailPolicy, nil, hits,
				fmt.Sprintf("forbidden terms present: %s", strings.Join(hits, ", ")))
		}
	}

	return domain.Valid()
}

func checkCoverage(obj map[string]any, rule Rule) (uncovered, dupes []string, detail string) {
	field, ok := obj[rule.CoverageField]
	if !ok {
		return rule.CoverageSet, nil, fmt.Sprintf("coverage field %q absent", rule.CoverageField)
	}
	arr, ok := field.([]any)
	if !ok {
		return rule.CoverageSet, nil, fmt.Sprintf("coverage field %q is not an array", rule.CoverageField)
	}

	seen := make(map[string]bool)
	uniques := make(map[string]bool)
	repeated := make(map[string]bool)
	mark := func(s string) {
		if seen[s] {
			repeated[s] = true
		}
		seen[s] = true
	}
	for _, elem := range arr {
		m, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		switch v := m[rule.CoverageKey].(type) {
		case string:
			mark(v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					mark(s)
				}
			}
		}
		if rule.UniqueKey != "" {
			if name, ok := m[rule.UniqueKey].(string); ok {
				if uniques[name] {
					repeated[name] = true
				}
				uniques[name] = true
			}
		}
	}

	for _, want := range rule.CoverageSet {
		if !seen[want] {
			uncovered = append(uncovered, want)
		}
	}
	for name := range repeated {
		dupes = append(dupes, name)
	}
	sort.Strings(uncovered)
	sort.Strings(dupes)
	return uncovered, dupes, ""
}

// findForbidden scans every string value in the object tree for the given
// terms on word boundaries, case-insensitively.
func findForbidden(obj map[string]any, terms []string) []string {
	var sb strings.Builder
	collectStrings(obj, &sb)
	text := sb.String()

	hits := make(map[string]bool)
	for _, term := range terms {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			hits[term] = true
		}
	}

	out := make([]string, 0, len(hits))
	for t := range hits {
		out = append(out, t)
	}
	return out
}

func collectStrings(v any, sb *strings.Builder) {
	switch t := v.(type) {
	case string:
		sb.WriteString(t)
		sb.WriteByte('\n')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(t[k], sb)
		}
	case []any:
		for _, item := range t {
			collectStrings(item, sb)
		}
	}
}
