package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/callback"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/dns"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/metrics"
)

// DefaultProvisionTimeout bounds a background provisioning run.
const DefaultProvisionTimeout = 15 * time.Minute

// Options wires the collaborators of a Service.
type Options struct {
	Verifier      Verifier
	Session       Session
	Provisioner   Provisioner
	Deprovisioner Deprovisioner
	Notifier      Notifier

	// Policy restricts the hostnames that may be connected. Nil allows all.
	Policy DomainPolicy

	// ProvisionTimeout bounds each background run. Zero selects
	// DefaultProvisionTimeout.
	ProvisionTimeout time.Duration

	// OnOutcome, when set, is called once per background run after the
	// callback has been attempted.
	OnOutcome func(Outcome)
}

// Service orchestrates domain requests.
type Service struct {
	opts Options
	log  logr.Logger
	wg   sync.WaitGroup
}

// NewService creates a service from opts.
func NewService(log logr.Logger, opts Options) *Service {
	if opts.ProvisionTimeout <= 0 {
		opts.ProvisionTimeout = DefaultProvisionTimeout
	}
	return &Service{opts: opts, log: log}
}

// Provision verifies DNS and the provider session for req and then starts
// adding and binding the hostname in the background. The returned Ack means
// the request was accepted; the result is reported to req.CallbackURL.
func (s *Service) Provision(ctx context.Context, req DomainRequest) (*Ack, error) {
	host, err := s.hostname(req.Hostname)
	if err != nil {
		return nil, err
	}
	if req.CallbackURL != "" {
		if err := callback.ValidateURL(req.CallbackURL); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	log := s.log.WithValues("hostname", host)

	res := s.opts.Verifier.Verify(ctx, dns.Expectation{
		Hostname: host,
		TXT:      req.ExpectedTXT,
		CNAME:    req.ExpectedCNAME,
		A:        req.ExpectedA,
	})
	if !res.Passed() {
		metrics.DNSVerifications.WithLabelValues("failed").Inc()
		log.Info("DNS verification failed", "reason", res.Err().Error())
		return nil, fmt.Errorf("%w: %w", ErrDNSVerificationFailed, res.Err())
	}
	metrics.DNSVerifications.WithLabelValues("passed").Inc()

	if err := s.opts.Session.Ensure(ctx); err != nil {
		log.Error(err, "provider authentication failed")
		return nil, fmt.Errorf("connector: %w", err)
	}

	ack := &Ack{
		JobID:            uuid.NewString(),
		Hostname:         host,
		ValidationMethod: ValidationMethodFor(req),
	}
	log.Info("provisioning accepted", "jobID", ack.JobID, "validationMethod", ack.ValidationMethod)

	// The run outlives the request: keep its values, drop its cancellation.
	bg := context.WithoutCancel(ctx)
	s.wg.Go(func() {
		s.run(bg, *ack, req.CallbackURL)
	})
	return ack, nil
}

// run performs the background provisioning for ack and reports exactly one
// outcome.
func (s *Service) run(ctx context.Context, ack Ack, callbackURL string) {
	log := s.log.WithValues("hostname", ack.Hostname, "jobID", ack.JobID)

	ctx, cancel := context.WithTimeout(ctx, s.opts.ProvisionTimeout)
	out := s.configure(ctx, log, ack)
	cancel()

	metrics.Operations.WithLabelValues("provision", metrics.Outcome(out.Err)).Inc()
	if out.Err != nil {
		log.Error(out.Err, "provisioning failed")
	} else {
		log.Info("provisioning completed")
	}

	if callbackURL != "" {
		s.notify(ctx, log, callbackURL, out)
	}
	if s.opts.OnOutcome != nil {
		s.opts.OnOutcome(out)
	}
}

func (s *Service) configure(ctx context.Context, log logr.Logger, ack Ack) (out Outcome) {
	out = Outcome{JobID: ack.JobID, Hostname: ack.Hostname}
	defer func() {
		if r := recover(); r != nil {
			log.Info("recovered from panic during provisioning", "panic", r)
			out.Status = callback.StatusError
			out.Message = MessageFailed
			out.Err = fmt.Errorf("%w: panic: %v", ErrProvisioningFailed, r)
		}
	}()

	if err := s.opts.Provisioner.Configure(ctx, ack.Hostname, ack.ValidationMethod); err != nil {
		out.Status = callback.StatusError
		out.Message = MessageFailed
		out.Err = fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
		return out
	}
	out.Status = callback.StatusSuccess
	out.Message = MessageConnected
	return out
}

// notify delivers out once. Failures are logged and counted, never retried.
func (s *Service) notify(ctx context.Context, log logr.Logger, url string, out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Callbacks.WithLabelValues("failure").Inc()
			log.Info("recovered from panic during callback", "panic", r)
		}
	}()

	// The provisioning deadline may already have passed; the notifier
	// applies its own timeout.
	err := s.opts.Notifier.Notify(context.WithoutCancel(ctx), url, out.Payload())
	metrics.Callbacks.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		log.Error(err, "callback delivery failed", "url", url)
		return
	}
	log.Info("callback delivered", "url", url, "status", out.Status)
}

// Delete removes hostname and its certificate. Unlike Provision it does not
// verify DNS and runs synchronously.
func (s *Service) Delete(ctx context.Context, hostname string) error {
	host, err := s.hostname(hostname)
	if err != nil {
		return err
	}
	log := s.log.WithValues("hostname", host)

	if err := s.opts.Session.Ensure(ctx); err != nil {
		log.Error(err, "provider authentication failed")
		return fmt.Errorf("connector: %w", err)
	}

	err = s.opts.Deprovisioner.Delete(ctx, host)
	metrics.Operations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	if err != nil {
		log.Error(err, "deletion failed")
		return fmt.Errorf("%w: %w", ErrDeletionFailed, err)
	}
	log.Info("hostname deleted")
	return nil
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// hostname normalizes raw and checks that it is a fully qualified DNS name
// permitted by the policy.
func (s *Service) hostname(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}
	host := dns.Normalize(raw)
	if errs := validation.IsDNS1123Subdomain(host); len(errs) > 0 {
		return "", fmt.Errorf("%w: domain %q: %s", ErrInvalidInput, raw, strings.Join(errs, "; "))
	}
	if !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: domain %q is not fully qualified", ErrInvalidInput, raw)
	}
	if s.opts.Policy != nil && !s.opts.Policy.Allows(host) {
		return "", fmt.Errorf("%w: %s", ErrDomainNotAllowed, host)
	}
	return host, nil
}
