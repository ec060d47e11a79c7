package fetch

import "strings"

// domainAllowlist stores exact hosts and suffix wildcards derived from
// configuration. The client fails closed: a host outside the list is
// rejected before any I/O.
type domainAllowlist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainAllowlist(patterns []string) *domainAllowlist {
	matcher := &domainAllowlist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			suffix := strings.TrimPrefix(value, "*.")
			if suffix != "" {
				matcher.addSuffix(suffix)
			}
		case strings.HasPrefix(value, "."):
			suffix := strings.TrimPrefix(value, ".")
			if suffix != "" {
				matcher.addSuffix(suffix)
			}
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	return matcher
}

func (a *domainAllowlist) addSuffix(suffix string) {
	for _, existing := range a.suffixes {
		if existing == suffix {
			return
		}
	}
	a.suffixes = append(a.suffixes, suffix)
}

// Allows reports whether host matches the allow-list. An empty list
// allows nothing.
func (a *domainAllowlist) Allows(host string) bool {
	if host == "" {
		return false
	}
	key := strings.ToLower(host)
	if _, ok := a.exact[key]; ok {
		return true
	}
	for _, suffix := range a.suffixes {
		if key == suffix || strings.HasSuffix(key, "."+suffix) {
			return true
		}
	}
	return false
}
