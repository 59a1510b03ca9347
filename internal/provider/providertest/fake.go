// Package providertest provides an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
)

// Fake is an in-memory provider.Client. Hostnames and certificates live in
// maps; every call is recorded as "Method arg..." for assertions. The Err
// fields inject failures per method.
type Fake struct {
	mu sync.Mutex

	LoggedIn     bool
	Hostnames    map[string]provider.ValidationMethod // "" until bound
	Certificates []provider.Certificate
	Calls        []string

	AddErr         error
	BindErr        error
	DeleteErr      error
	ListCertsErr   error
	DeleteCertErr  error
	LoginErr       error
	LoginCreds     provider.Credentials
	OnBindHostname func(hostname string)
}

// NewFake returns a fake with an active session.
func NewFake() *Fake {
	return &Fake{LoggedIn: true, Hostnames: map[string]provider.ValidationMethod{}}
}

func (f *Fake) record(call string, args ...string) {
	f.Calls = append(f.Calls, strings.TrimSpace(call+" "+strings.Join(args, " ")))
}

// CallsTo returns the recorded calls to the given method.
func (f *Fake) CallsTo(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns the total number of recorded calls.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *Fake) AddHostname(_ context.Context, hostname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddHostname", hostname)
	if f.AddErr != nil {
		return f.AddErr
	}
	if _, ok := f.Hostnames[hostname]; ok {
		return fmt.Errorf("fake: %s: %w", hostname, provider.ErrHostnameExists)
	}
	f.Hostnames[hostname] = ""
	return nil
}

func (f *Fake) BindHostname(_ context.Context, hostname string, method provider.ValidationMethod) error {
	f.mu.Lock()
	f.record("BindHostname", hostname, string(method))
	if f.BindErr != nil {
		f.mu.Unlock()
		return f.BindErr
	}
	if _, ok := f.Hostnames[hostname]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("fake: bind %s before add: %w", hostname, provider.ErrCommandFailed)
	}
	f.Hostnames[hostname] = method
	hook := f.OnBindHostname
	f.mu.Unlock()
	if hook != nil {
		hook(hostname)
	}
	return nil
}

func (f *Fake) DeleteHostname(_ context.Context, hostname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteHostname", hostname)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.Hostnames, hostname)
	return nil
}

func (f *Fake) ListCertificates(_ context.Context) ([]provider.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListCertificates")
	if f.ListCertsErr != nil {
		return nil, f.ListCertsErr
	}
	return append([]provider.Certificate(nil), f.Certificates...), nil
}

func (f *Fake) DeleteCertificate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteCertificate", id)
	if f.DeleteCertErr != nil {
		return f.DeleteCertErr
	}
	kept := f.Certificates[:0]
	for _, c := range f.Certificates {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.Certificates = kept
	return nil
}

func (f *Fake) Login(_ context.Context, creds provider.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Login")
	f.LoginCreds = creds
	if f.LoginErr != nil {
		return f.LoginErr
	}
	f.LoggedIn = true
	return nil
}

func (f *Fake) AccountStatus(_ context.Context) (*provider.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AccountStatus")
	if !f.LoggedIn {
		return nil, provider.ErrNotLoggedIn
	}
	return &provider.Account{ID: "sub-1", Name: "fake", TenantID: "tenant-1", User: "sp"}, nil
}

var _ provider.Client = (*Fake)(nil)
