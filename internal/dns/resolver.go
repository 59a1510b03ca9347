package dns

import (
	"context"
	"net"
)

// Resolver looks up the record types the verifier needs. Every method
// returns the records found for name, or an error when the lookup fails.
type Resolver interface {
	// LookupIPv4 returns the A records of name.
	LookupIPv4(ctx context.Context, name string) ([]string, error)
	// LookupCNAME returns the canonical names of name.
	LookupCNAME(ctx context.Context, name string) ([]string, error)
	// LookupTXT returns one string per TXT record, with the record's
	// character-strings concatenated in order.
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// NetResolver implements Resolver on top of the Go resolver.
type NetResolver struct {
	r *net.Resolver
}

// NewNetResolver returns a resolver using the system configuration. When
// nameserver is set ("host:port"), every query is sent there instead.
func NewNetResolver(nameserver string) *NetResolver {
	if nameserver == "" {
		return &NetResolver{r: net.DefaultResolver}
	}
	return &NetResolver{r: &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, nameserver)
		},
	}}
}

func (n *NetResolver) LookupIPv4(ctx context.Context, name string) ([]string, error) {
	ips, err := n.r.LookupIP(ctx, "ip4", name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out, nil
}

// LookupCNAME returns the canonical name the resolver ends on after following
// the alias chain.
func (n *NetResolver) LookupCNAME(ctx context.Context, name string) ([]string, error) {
	cname, err := n.r.LookupCNAME(ctx, name)
	if err != nil {
		return nil, err
	}
	return []string{Normalize(cname)}, nil
}

func (n *NetResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return n.r.LookupTXT(ctx, name)
}
