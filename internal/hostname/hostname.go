// Package hostname attaches custom hostnames to the container application and
// removes them again, delegating every step to a provider.Client.
package hostname

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
)

// Provisioner adds and binds hostnames.
type Provisioner struct {
	client provider.Client
	locks  *Locker
	log    logr.Logger
}

// NewProvisioner creates a provisioner. Provisioner and Deprovisioner sharing
// one Locker never work on the same hostname at once.
func NewProvisioner(log logr.Logger, client provider.Client, locks *Locker) *Provisioner {
	return &Provisioner{client: client, locks: locks, log: log}
}

// Configure adds hostname to the application and then binds it with the
// given validation method, which triggers certificate issuance. A hostname
// that is already added is not an error; binding still runs.
func (p *Provisioner) Configure(ctx context.Context, hostname string, method provider.ValidationMethod) error {
	unlock, err := p.locks.Lock(ctx, hostname)
	if err != nil {
		return fmt.Errorf("hostname: waiting for %s: %w", hostname, err)
	}
	defer unlock()

	log := p.log.WithValues("hostname", hostname)
	log.Info("configuring hostname", "validationMethod", method)

	if err := p.client.AddHostname(ctx, hostname); err != nil {
		if !errors.Is(err, provider.ErrHostnameExists) {
			return fmt.Errorf("hostname: add %s: %w", hostname, err)
		}
		log.Info("hostname already exists in container app")
	} else {
		log.Info("hostname added to container app")
	}

	if err := p.client.BindHostname(ctx, hostname, method); err != nil {
		return fmt.Errorf("hostname: bind %s: %w", hostname, err)
	}
	log.Info("hostname bound")
	return nil
}

// Deprovisioner removes hostnames and their managed certificates.
type Deprovisioner struct {
	client provider.Client
	locks  *Locker
	log    logr.Logger
}

// NewDeprovisioner creates a deprovisioner.
func NewDeprovisioner(log logr.Logger, client provider.Client, locks *Locker) *Deprovisioner {
	return &Deprovisioner{client: client, locks: locks, log: log}
}

// Delete removes hostname from the application, then deletes the certificate
// whose subject name is hostname. A missing certificate is not an error.
func (d *Deprovisioner) Delete(ctx context.Context, hostname string) error {
	unlock, err := d.locks.Lock(ctx, hostname)
	if err != nil {
		return fmt.Errorf("hostname: waiting for %s: %w", hostname, err)
	}
	defer unlock()

	log := d.log.WithValues("hostname", hostname)
	log.Info("deleting hostname")

	if err := d.client.DeleteHostname(ctx, hostname); err != nil {
		return fmt.Errorf("hostname: delete %s: %w", hostname, err)
	}
	log.Info("hostname deleted from container app")

	certs, err := d.client.ListCertificates(ctx)
	if err != nil {
		return fmt.Errorf("hostname: list certificates for %s: %w", hostname, err)
	}
	cert, ok := provider.FindCertificate(certs, hostname)
	if !ok || cert.ID == "" {
		log.Info("no certificate found for hostname")
		return nil
	}

	log.Info("deleting certificate", "certificate", cert.ID)
	if err := d.client.DeleteCertificate(ctx, cert.ID); err != nil {
		return fmt.Errorf("hostname: delete certificate %s: %w", cert.ID, err)
	}
	log.Info("certificate deleted", "certificate", cert.ID)
	return nil
}
