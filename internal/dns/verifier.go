package dns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
)

// DefaultLookupTimeout bounds a single record lookup.
const DefaultLookupTimeout = 5 * time.Second

var (
	// ErrRecordMismatch is set on a check whose lookup succeeded but did not
	// contain the expected value.
	ErrRecordMismatch = errors.New("expected record value not found")

	// ErrNotChecked is set on a requested check that was skipped because an
	// earlier check already failed.
	ErrNotChecked = errors.New("not checked")
)

// Expectation holds the records a hostname must publish. TXT is always
// checked; A and CNAME only when non-empty.
type Expectation struct {
	Hostname string
	TXT      string
	CNAME    string
	A        string
}

// Check is the outcome of one record type.
type Check struct {
	Requested bool
	Passed    bool
	Found     []string
	Err       error
}

// ok reports whether the check does not block verification.
func (c Check) ok() bool {
	return !c.Requested || c.Passed
}

// Result is the outcome of a full verification.
type Result struct {
	Hostname string
	A        Check
	CNAME    Check
	TXT      Check
}

// Passed reports whether every requested check passed.
func (r Result) Passed() bool {
	return r.A.ok() && r.CNAME.ok() && r.TXT.ok()
}

// Err returns the first failure, or nil when verification passed.
func (r Result) Err() error {
	for _, c := range []struct {
		kind  string
		check Check
	}{{"A", r.A}, {"CNAME", r.CNAME}, {"TXT", r.TXT}} {
		if !c.check.ok() {
			return fmt.Errorf("dns: %s check for %s: %w", c.kind, r.Hostname, c.check.Err)
		}
	}
	return nil
}

// Verifier checks DNS ownership records. Lookup failures never escape: they
// turn the affected check, and so the whole result, into a failure.
type Verifier struct {
	resolver Resolver
	log      logr.Logger
	timeout  time.Duration
}

// NewVerifier creates a verifier. A zero timeout selects DefaultLookupTimeout.
func NewVerifier(log logr.Logger, resolver Resolver, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Verifier{resolver: resolver, log: log, timeout: timeout}
}

// Check reports whether hostname publishes the expected TXT record and, when
// given, the expected CNAME and A records.
func (v *Verifier) Check(ctx context.Context, hostname, expectedTXT, expectedCNAME, expectedA string) bool {
	return v.Verify(ctx, Expectation{
		Hostname: hostname,
		TXT:      expectedTXT,
		CNAME:    expectedCNAME,
		A:        expectedA,
	}).Passed()
}

// Verify runs the requested checks in the order A, CNAME, TXT and stops at
// the first failure. Each lookup is attempted exactly once.
func (v *Verifier) Verify(ctx context.Context, exp Expectation) Result {
	host := Normalize(exp.Hostname)
	res := Result{
		Hostname: host,
		A:        Check{Requested: exp.A != ""},
		CNAME:    Check{Requested: exp.CNAME != ""},
		TXT:      Check{Requested: true},
	}
	log := v.log.WithValues("hostname", host)
	log.Info("starting DNS check")

	if res.A.Requested {
		res.A = v.check(ctx, log, "A", host, exp.A, v.resolver.LookupIPv4, identity)
		if !res.A.Passed {
			skip(&res.CNAME, &res.TXT)
			return res
		}
	}

	if res.CNAME.Requested {
		res.CNAME = v.check(ctx, log, "CNAME", host, Normalize(exp.CNAME), v.resolver.LookupCNAME, Normalize)
		if !res.CNAME.Passed {
			skip(&res.TXT)
			return res
		}
	}

	res.TXT = v.check(ctx, log, "TXT", OwnershipName(host), exp.TXT, v.resolver.LookupTXT, identity)
	if res.TXT.Passed {
		log.Info("DNS check passed")
	}
	return res
}

type lookupFunc func(ctx context.Context, name string) ([]string, error)

func (v *Verifier) check(ctx context.Context, log logr.Logger, kind, name, expected string, lookup lookupFunc, norm func(string) string) Check {
	c := Check{Requested: true}
	if expected == "" {
		c.Err = fmt.Errorf("empty expected %s value", kind)
		log.Info("DNS check failed", "type", kind, "reason", c.Err.Error())
		return c
	}

	lctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	records, err := lookup(lctx, name)
	if err != nil {
		c.Err = err
		log.Info("DNS lookup failed", "type", kind, "name", name, "error", err.Error())
		return c
	}

	found := sets.New[string]()
	for _, r := range records {
		found.Insert(norm(r))
	}
	c.Found = sets.List(found)
	log.V(1).Info("resolved records", "type", kind, "name", name, "records", c.Found)

	if !found.Has(expected) {
		c.Err = ErrRecordMismatch
		log.Info("expected record not found", "type", kind, "name", name, "expected", expected)
		return c
	}
	c.Passed = true
	return c
}

func skip(checks ...*Check) {
	for _, c := range checks {
		if c.Requested {
			c.Err = ErrNotChecked
		}
	}
}

func identity(s string) string { return s }
