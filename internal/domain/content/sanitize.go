package content

import "github.com/microcosm-cc/bluemonday"

// Sanitizer produces script-free previews of untrusted game markup for
// catalog browsing and moderation screens. Playable documents keep their
// scripts; previews never do.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a sanitizer on bluemonday's UGC policy, extended to
// keep the presentation attributes games commonly rely on.
func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("style").OnElements("div", "span", "p", "h1", "h2", "h3", "button")
	p.AllowElements("canvas", "button")
	return &Sanitizer{policy: p}
}

// Preview strips scripts, event handlers, and anything else executable.
func (s *Sanitizer) Preview(raw string) string {
	return s.policy.Sanitize(raw)
}
