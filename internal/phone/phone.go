// Package phone canonicalizes provider phone identifiers and produces the
// lookup variants needed to match customer records stored in mixed formats.
package phone

import "strings"

const waSuffix = "@s.whatsapp.net"

// Normalize strips the WhatsApp network suffix and removes everything
// except digits and a leading +.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, waSuffix)
	if i := strings.Index(s, "@"); i >= 0 {
		// group/broadcast JIDs carry other domains
		s = s[:i]
	}

	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Variants returns the canonical number plus the +-prefixed and +-stripped
// forms. Customer records use inconsistent formats; every variant must be
// tried or linkage is silently lost.
func Variants(canonical string) []string {
	if canonical == "" {
		return nil
	}
	seen := make(map[string]bool, 3)
	out := make([]string, 0, 3)
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	add(canonical)
	add("+" + strings.TrimPrefix(canonical, "+"))
	add(strings.TrimPrefix(canonical, "+"))
	return out
}
