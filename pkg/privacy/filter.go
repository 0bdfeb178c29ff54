// Package privacy sanitizes free-text content before it is durably stored.
//
// Scan applies an ordered set of independent detectors and replaces every
// match with a fixed placeholder. Detection is pure pattern matching; the
// secret-token heuristic intentionally accepts false positives rather than
// letting credentials through.
package privacy

import "regexp"

// Result is the outcome of scanning a text.
type Result struct {
	// Redacted is the input with every detector match replaced by its
	// placeholder.
	Redacted string

	// HasPII reports whether any detector matched.
	HasPII bool

	// Triggered lists the names of the detectors that matched, in
	// detector order.
	Triggered []string
}

type detector struct {
	name        string
	placeholder string
	pattern     *regexp.Regexp
}

// Detectors run in this order. Card numbers are matched before phone
// numbers so the looser phone pattern cannot eat a fragment of a card.
var detectors = []detector{
	{
		name:        "email",
		placeholder: "[EMAIL]",
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	},
	{
		name:        "national_id",
		placeholder: "[ID-NUMBER]",
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		name:        "payment_card",
		placeholder: "[CARD]",
		pattern:     regexp.MustCompile(`\b\d{4}[ \-]?\d{4}[ \-]?\d{4}[ \-]?\d{4}\b`),
	},
	{
		name:        "phone",
		placeholder: "[PHONE]",
		pattern:     regexp.MustCompile(`(\+\d{1,2}[ .\-]?)?(\(\d{3}\)|\d{3})[ .\-]?\d{3}[ .\-]?\d{4}\b`),
	},
	{
		name:        "ipv4",
		placeholder: "[IP]",
		pattern:     regexp.MustCompile(`\b(\d{1,3}\.){3}\d{1,3}\b`),
	},
	{
		// Coarse secret heuristic: any contiguous run of 20+ token
		// characters looks enough like a key to redact.
		name:        "secret_token",
		placeholder: "[TOKEN]",
		pattern:     regexp.MustCompile(`[A-Za-z0-9_\-]{20,}`),
	},
}

// Scan redacts sensitive patterns from text.
//
// Every detector is applied independently; several may fire on the same
// input. Scan is deterministic and has no side effects.
func Scan(text string) Result {
	result := Result{Redacted: text}

	for _, d := range detectors {
		if !d.pattern.MatchString(result.Redacted) {
			continue
		}
		result.Redacted = d.pattern.ReplaceAllString(result.Redacted, d.placeholder)
		result.HasPII = true
		result.Triggered = append(result.Triggered, d.name)
	}

	return result
}
