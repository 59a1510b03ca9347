// Package session observes and establishes the provider CLI session. The
// session itself lives in the CLI's credential cache; nothing is stored here
// beyond the credentials handed to Login.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
)

// ErrAuthenticationFailed is returned by Ensure when no session exists and
// login did not succeed.
var ErrAuthenticationFailed = errors.New("provider authentication failed")

// Manager checks and establishes the provider session.
type Manager struct {
	client provider.Client
	creds  provider.Credentials
	log    logr.Logger
	group  singleflight.Group
}

// NewManager creates a session manager that logs in with creds when needed.
func NewManager(log logr.Logger, client provider.Client, creds provider.Credentials) *Manager {
	return &Manager{client: client, creds: creds, log: log}
}

// IsLoggedIn reports whether the provider has an active session. Any failure
// counts as not logged in.
func (m *Manager) IsLoggedIn(ctx context.Context) bool {
	m.log.V(1).Info("checking provider login status")
	acct, err := m.client.AccountStatus(ctx)
	if err != nil {
		m.log.Info("not logged in to provider", "reason", err.Error())
		return false
	}
	m.log.V(1).Info("provider session active", "account", acct.Name, "tenant", acct.TenantID)
	return true
}

// Login authenticates with the service principal credentials. Success is
// decided only by the login command's exit status.
func (m *Manager) Login(ctx context.Context) bool {
	m.log.Info("logging in to provider", "clientID", m.creds.ClientID, "tenant", m.creds.TenantID)
	if err := m.client.Login(ctx, m.creds); err != nil {
		m.log.Error(err, "provider login failed")
		return false
	}
	m.log.Info("provider login successful")
	return true
}

// Ensure makes sure a session exists, logging in if necessary. Concurrent
// callers share a single status check and login. The shared flight is not
// cancelled when the caller that started it goes away; each caller stops
// waiting when its own ctx is done.
func (m *Manager) Ensure(ctx context.Context) error {
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("session", func() (interface{}, error) {
		if m.IsLoggedIn(flightCtx) {
			return nil, nil
		}
		if !m.Login(flightCtx) {
			return nil, ErrAuthenticationFailed
		}
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("session: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			m.log.V(1).Info("joined in-flight session check")
		}
		if res.Err != nil {
			return fmt.Errorf("session: %w", res.Err)
		}
		return nil
	}
}
