package memory

import "strings"

// matchSubject checks if a subject matches a pattern.
// Supports NATS-style wildcards:
// - "*" matches a single token
// - ">" matches one or more tokens (must be last)
func matchSubject(pattern, subject string) bool {
	if pattern == "" || subject == "" {
		return false
	}

	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		if p == ">" {
			return true
		}
		s, sRest, sMore := strings.Cut(subject, ".")
		if p != "*" && p != s {
			return false
		}
		if !pMore || !sMore {
			return pMore == sMore
		}
		pattern, subject = pRest, sRest
	}
}
