// Package connector sequences DNS verification, provider authentication and
// hostname provisioning for a single domain request.
//
// Provisioning is acknowledged once DNS and authentication succeed and then
// continues in the background; its outcome is pushed to the request's
// callback URL. Deletion runs synchronously.
package connector

import (
	"context"
	"errors"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/callback"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/dns"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/session"
)

var (
	// ErrInvalidInput is returned for a missing or malformed hostname or
	// callback URL. No external call has been made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDomainNotAllowed is returned for hostnames outside the configured
	// allow-list.
	ErrDomainNotAllowed = errors.New("domain not allowed")

	// ErrDNSVerificationFailed is returned when the expected records could
	// not be proven. No authentication or provider call has been made.
	ErrDNSVerificationFailed = errors.New("DNS verification failed")

	// ErrAuthenticationFailed is returned when no provider session exists
	// and login failed.
	ErrAuthenticationFailed = session.ErrAuthenticationFailed

	// ErrProvisioningFailed is carried by the outcome of a failed background
	// provisioning run.
	ErrProvisioningFailed = errors.New("provisioning failed")

	// ErrDeletionFailed is returned when the hostname or its certificate
	// could not be removed.
	ErrDeletionFailed = errors.New("deletion failed")
)

// Messages reported to callers and callback receivers.
const (
	MessageAccepted  = "Domain configuration started"
	MessageConnected = "Domain successfully connected"
	MessageFailed    = "Configuration failed"
	MessageDeleted   = "Domain successfully deleted"
)

// DomainRequest asks for a hostname to be connected to the application.
type DomainRequest struct {
	Hostname      string
	ExpectedTXT   string
	ExpectedA     string
	ExpectedCNAME string
	CallbackURL   string
}

// Ack acknowledges a provisioning request that passed verification and is
// now running in the background.
type Ack struct {
	JobID            string
	Hostname         string
	ValidationMethod provider.ValidationMethod
}

// Outcome is the terminal result of one background provisioning run.
type Outcome struct {
	JobID    string
	Hostname string
	Status   string
	Message  string
	Err      error
}

// Payload returns the callback body for o.
func (o Outcome) Payload() callback.Payload {
	return callback.Payload{Status: o.Status, Message: o.Message, Domain: o.Hostname}
}

// ValidationMethodFor selects HTTP validation when an A record is expected
// and CNAME validation otherwise.
func ValidationMethodFor(req DomainRequest) provider.ValidationMethod {
	if req.ExpectedA != "" {
		return provider.ValidationHTTP
	}
	return provider.ValidationCNAME
}

// Verifier checks DNS ownership records.
type Verifier interface {
	Verify(ctx context.Context, exp dns.Expectation) dns.Result
}

// Session makes sure the provider is authenticated.
type Session interface {
	Ensure(ctx context.Context) error
}

// Provisioner adds and binds a hostname.
type Provisioner interface {
	Configure(ctx context.Context, hostname string, method provider.ValidationMethod) error
}

// Deprovisioner removes a hostname and its certificate.
type Deprovisioner interface {
	Delete(ctx context.Context, hostname string) error
}

// Notifier delivers outcomes to callback URLs.
type Notifier interface {
	Notify(ctx context.Context, url string, p callback.Payload) error
}

// DomainPolicy decides which hostnames may be connected.
type DomainPolicy interface {
	Allows(hostname string) bool
}
