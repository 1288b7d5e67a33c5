// Package capabilities derives the set of host capabilities a compiled
// module declares it needs, by scanning its exported function names.
package capabilities

import "strings"

const prefix = "requires_"

// FromExportNames scans names (typically every exported function name
// of a compiled module) and returns the set of capability tokens
// declared via a requires_<token> export. The match is case-sensitive,
// the prefix must be exactly "requires_", and an empty token after the
// prefix is ignored. Order of names does not affect the result.
func FromExportNames(names []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		token := name[len(prefix):]
		if token == "" {
			continue
		}
		out[token] = struct{}{}
	}
	return out
}
