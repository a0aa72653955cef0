package services

import "github.com/pratik-mahalle/farmlink/internal/domain/connection"

// EvaluateConnection folds token validity and probe results into one status.
// A valid credential with no configured endpoints counts as Connected.
// AuthRequired is never produced here; callers decide it before probing.
func EvaluateConnection(hasValidCredential bool, results []connection.ProbeResult) connection.Status {
	if !hasValidCredential {
		return connection.StatusDisconnected
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	switch {
	case succeeded == len(results):
		return connection.StatusConnected
	case succeeded == 0:
		return connection.StatusConnectionRequired
	default:
		return connection.StatusPartiallyConnected
	}
}

// RemediationLinks returns the distinct customer action URLs in first-seen order
func RemediationLinks(results []connection.ProbeResult) []string {
	links := []string{}
	seen := make(map[string]struct{})
	for _, r := range results {
		if r.Category == nil || r.Category.Kind != connection.CategoryRequiredCustomerAction || r.Category.URL == "" {
			continue
		}
		if _, ok := seen[r.Category.URL]; ok {
			continue
		}
		seen[r.Category.URL] = struct{}{}
		links = append(links, r.Category.URL)
	}
	return links
}
