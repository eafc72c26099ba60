// Package hosts decides which hosts scrape requests may target.
//
// Patterns are exact hosts ("shop.example") or suffix wildcards ("*.example",
// ".example"), matched case-insensitively. Deny wins over allow; an empty allow
// list admits every host not denied.
package hosts

import "strings"

// Policy admits or rejects hosts.
type Policy struct {
	allow *matcher
	deny  *matcher
}

// New builds a Policy from allow and deny patterns.
func New(allow, deny []string) *Policy {
	return &Policy{allow: newMatcher(allow), deny: newMatcher(deny)}
}

// Allowed reports whether host may be scraped.
func (p *Policy) Allowed(host string) bool {
	if p == nil {
		return true
	}
	if p.deny.matches(host) {
		return false
	}
	return p.allow == nil || p.allow.matches(host)
}

type matcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newMatcher(patterns []string) *matcher {
	m := &matcher{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
			continue
		case strings.HasPrefix(value, "*."):
			m.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			m.addSuffix(strings.TrimPrefix(value, "."))
		default:
			m.exact[value] = struct{}{}
		}
	}
	if len(m.exact) == 0 && len(m.suffixes) == 0 {
		return nil
	}
	return m
}

func (m *matcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

func (m *matcher) matches(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := m.exact[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
