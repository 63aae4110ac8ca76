package github

import (
	"log/slog"
	"strings"
)

// dedupeLogins removes empty and duplicate logins, keeping the first
// occurrence of each. Comparison is case-insensitive, as GitHub logins are.
func dedupeLogins(logins []string, logger *slog.Logger) []string {
	seen := make(map[string]bool, len(logins))
	dupCounts := make(map[string]int)
	unique := make([]string, 0, len(logins))

	for _, l := range logins {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		key := strings.ToLower(l)
		if seen[key] {
			dupCounts[key]++
			continue
		}
		seen[key] = true
		unique = append(unique, l)
	}

	if len(dupCounts) > 0 {
		total := 0
		for _, v := range dupCounts {
			total += v
		}
		logger.Warn("Detected and skipped duplicate logins",
			"duplicate_entries", total,
			"unique_users_affected", len(dupCounts),
		)
	}
	return unique
}

// DedupeLogins is the exported form of dedupeLogins for callers outside the
// package that merge login lists.
func DedupeLogins(logins []string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	return dedupeLogins(logins, logger)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
