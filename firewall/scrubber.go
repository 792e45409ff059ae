package firewall

import "regexp"

// Scrubber redacts obvious PII patterns from a transaction payload before
// it reaches execution or is persisted in a receipt. It is a
// pattern-matching safety net, not a substitute for services declaring
// their own sensitive fields — those are expected to encrypt or omit PII
// themselves.
type Scrubber struct {
	patterns []*regexp.Regexp
}

// DefaultPatterns matches the PII shapes most likely to leak into a
// free-text payload: email addresses and US-style phone numbers.
var DefaultPatterns = []string{
	`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,
	`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`,
}

func NewScrubber(patterns []string) *Scrubber {
	s := &Scrubber{}
	for _, p := range patterns {
		s.patterns = append(s.patterns, regexp.MustCompile(p))
	}
	return s
}

// Scrub returns payload with every pattern match replaced by "[REDACTED]",
// and whether anything was actually replaced.
func (s *Scrubber) Scrub(payload []byte) ([]byte, bool) {
	out := payload
	changed := false
	for _, re := range s.patterns {
		if re.Match(out) {
			changed = true
			out = re.ReplaceAll(out, []byte("[REDACTED]"))
		}
	}
	return out, changed
}
