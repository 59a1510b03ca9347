package config

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// DomainPolicy restricts which hostnames may be connected. Entries are base
// domains ("example.com", matching itself and every subdomain) or wildcards
// ("*.example.com", matching subdomains only). An empty policy allows every
// hostname.
type DomainPolicy struct {
	entries sets.Set[string]
}

// NewDomainPolicy builds a policy from allow-list entries.
func NewDomainPolicy(domains []string) *DomainPolicy {
	entries := sets.New[string]()
	for _, d := range domains {
		d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			entries.Insert(d)
		}
	}
	return &DomainPolicy{entries: entries}
}

// Allows reports whether hostname matches the allow-list.
// It walks up the domain labels checking for exact matches and wildcard entries.
// For example, given:
//
//	"*.customers.example.com"
//	"example.org"
//
// "shop.customers.example.com" is allowed (wildcard match),
// "customers.example.com" is not (wildcards do not match the bare domain),
// "www.example.org" and "example.org" are allowed (base domain match).
func (p *DomainPolicy) Allows(hostname string) bool {
	if p == nil || len(p.entries) == 0 {
		return true
	}
	hostname = strings.TrimSuffix(strings.ToLower(hostname), ".")
	// Walk up the domain labels until we find a match
	for h := hostname; h != ""; {
		if p.entries.Has(h) {
			return true
		}
		idx := strings.Index(h, ".")
		if idx < 0 {
			break
		}
		if p.entries.Has("*." + h[idx+1:]) {
			return true
		}
		h = h[idx+1:]
	}
	return false
}

// Domains returns the normalized allow-list entries in sorted order. It is
// empty when every hostname is allowed.
func (p *DomainPolicy) Domains() []string {
	if p == nil {
		return nil
	}
	return sets.List(p.entries)
}
