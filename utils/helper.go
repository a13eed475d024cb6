package utils

import "strings"

// SplitAndTrim splits a comma separated value and drops empty entries.
func SplitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CourierSlug normalizes a human carrier name ("Royal Mail") into the
// courier identifier the protection API expects ("royal-mail").
func CourierSlug(carrierName string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(carrierName)), " ", "-")
}
