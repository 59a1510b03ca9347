package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/dns"
)

var errCheckFailed = errors.New("DNS verification failed")

type checkDNSOptions struct {
	txt        string
	cname      string
	a          string
	nameserver string
	timeout    time.Duration
}

func newCheckDNSCommand() *cobra.Command {
	var o checkDNSOptions

	cmd := &cobra.Command{
		Use:   "check-dns <hostname>",
		Short: "Verify a hostname's ownership records once and print the result",
		Example: `  yk-domain-connector check-dns app.example.com --txt abc123
  yk-domain-connector check-dns app.example.com --txt abc123 --a 20.1.2.3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := dns.NewNetResolver(o.nameserver)
			v := dns.NewVerifier(ctrl.Log.WithName("dns"), resolver, o.timeout)
			return runCheckDNS(cmd.Context(), cmd.OutOrStdout(), v, dns.Expectation{
				Hostname: args[0],
				TXT:      o.txt,
				CNAME:    o.cname,
				A:        o.a,
			})
		},
	}

	cmd.Flags().StringVar(&o.txt, "txt", "", "expected TXT value at asuid.<hostname>")
	cmd.Flags().StringVar(&o.cname, "cname", "", "expected CNAME target")
	cmd.Flags().StringVar(&o.a, "a", "", "expected IPv4 address")
	cmd.Flags().StringVar(&o.nameserver, "nameserver", "", "query this host:port instead of the system resolver")
	cmd.Flags().DurationVar(&o.timeout, "timeout", dns.DefaultLookupTimeout, "timeout per lookup")
	_ = cmd.MarkFlagRequired("txt")
	return cmd
}

type verifier interface {
	Verify(ctx context.Context, exp dns.Expectation) dns.Result
}

func runCheckDNS(ctx context.Context, out io.Writer, v verifier, exp dns.Expectation) error {
	res := v.Verify(ctx, exp)

	fmt.Fprintf(out, "%-6s %-8s %s\n", "TYPE", "RESULT", "RECORDS")
	for _, row := range []struct {
		kind  string
		check dns.Check
	}{{"A", res.A}, {"CNAME", res.CNAME}, {"TXT", res.TXT}} {
		fmt.Fprintf(out, "%-6s %-8s %s\n", row.kind, checkStatus(row.check), checkDetail(row.check))
	}

	if !res.Passed() {
		return fmt.Errorf("%w: %w", errCheckFailed, res.Err())
	}
	fmt.Fprintf(out, "%s: ok\n", res.Hostname)
	return nil
}

func checkStatus(c dns.Check) string {
	switch {
	case !c.Requested:
		return "skipped"
	case c.Passed:
		return "pass"
	case errors.Is(c.Err, dns.ErrNotChecked):
		return "-"
	default:
		return "FAIL"
	}
}

func checkDetail(c dns.Check) string {
	if len(c.Found) > 0 {
		return strings.Join(c.Found, ", ")
	}
	if c.Err != nil && !errors.Is(c.Err, dns.ErrNotChecked) {
		return c.Err.Error()
	}
	return ""
}
