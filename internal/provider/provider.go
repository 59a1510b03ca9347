package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHostnameExists is returned by AddHostname when the hostname is
	// already registered on the application.
	ErrHostnameExists = errors.New("hostname already exists")

	// ErrNotLoggedIn is returned by AccountStatus when no session is active.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrCommandFailed wraps any other provider failure.
	ErrCommandFailed = errors.New("provider command failed")
)

// ValidationMethod selects how the provider validates domain control before
// issuing a managed certificate.
type ValidationMethod string

const (
	ValidationCNAME ValidationMethod = "CNAME"
	ValidationHTTP  ValidationMethod = "HTTP"
)

// Certificate is a managed certificate held by the hosting environment.
type Certificate struct {
	ID          string
	Name        string
	SubjectName string
}

// Account describes the active provider session.
type Account struct {
	ID       string
	Name     string
	TenantID string
	User     string
}

// Credentials identify the service principal used to log in.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// String never renders the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("client_id=%s tenant_id=%s client_secret=[REDACTED]", c.ClientID, c.TenantID)
}

// Complete reports whether all three values are set.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.TenantID != ""
}

// Client is the set of provider operations the connector delegates to.
type Client interface {
	// AddHostname registers hostname on the target application. It returns
	// an error wrapping ErrHostnameExists when it is already registered.
	AddHostname(ctx context.Context, hostname string) error
	// BindHostname binds hostname to the environment, triggering managed
	// certificate issuance.
	BindHostname(ctx context.Context, hostname string, method ValidationMethod) error
	// DeleteHostname removes hostname from the application without prompting.
	DeleteHostname(ctx context.Context, hostname string) error
	ListCertificates(ctx context.Context) ([]Certificate, error)
	DeleteCertificate(ctx context.Context, id string) error
	Login(ctx context.Context, creds Credentials) error
	// AccountStatus returns the active account, or an error wrapping
	// ErrNotLoggedIn.
	AccountStatus(ctx context.Context) (*Account, error)
}

// FindCertificate returns the certificate whose subject name is hostname.
func FindCertificate(certs []Certificate, hostname string) (Certificate, bool) {
	hostname = strings.TrimSuffix(hostname, ".")
	for _, c := range certs {
		if strings.EqualFold(strings.TrimSuffix(c.SubjectName, "."), hostname) {
			return c, true
		}
	}
	return Certificate{}, false
}
