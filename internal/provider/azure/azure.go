package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/client-go/util/flowcontrol"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/metrics"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
)

// Name is the registry name of this provider.
const Name = "azure-cli"

const (
	defaultAzPath         = "az"
	defaultCommandTimeout = 2 * time.Minute

	// hostnameExistsMarker is the text az prints on stderr when
	// `containerapp hostname add` targets a hostname that is already bound.
	hostnameExistsMarker = "already exists in container app"
)

func init() {
	provider.Register(Name, func(log logr.Logger, settings map[string]string) (provider.Client, error) {
		return New(log, settings)
	})
}

// runFunc executes name with args and returns its captured output.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Provider implements provider.Client by shelling out to the az CLI.
type Provider struct {
	appName       string
	resourceGroup string
	environment   string
	azPath        string
	timeout       time.Duration
	limiter       flowcontrol.RateLimiter
	run           runFunc
	log           logr.Logger

	mu      sync.RWMutex
	secrets []string
}

// New creates an az CLI provider from the given settings map.
// Required settings: app_name, resource_group, environment.
// Optional settings: az_path (default "az"), command_timeout (default 2m),
// command_qps and command_burst (client-side rate limit, off by default),
// client_secret (only used to redact logs; login credentials are passed to Login).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	appName := settings["app_name"]
	if appName == "" {
		return nil, fmt.Errorf("azure: missing required setting 'app_name'")
	}
	resourceGroup := settings["resource_group"]
	if resourceGroup == "" {
		return nil, fmt.Errorf("azure: missing required setting 'resource_group'")
	}
	environment := settings["environment"]
	if environment == "" {
		return nil, fmt.Errorf("azure: missing required setting 'environment'")
	}

	azPath := settings["az_path"]
	if azPath == "" {
		azPath = defaultAzPath
	}

	timeout := defaultCommandTimeout
	if v := settings["command_timeout"]; v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("azure: invalid command_timeout %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("azure: command_timeout must be positive, got %q", v)
		}
		timeout = parsed
	}

	var limiter flowcontrol.RateLimiter
	if v := settings["command_qps"]; v != "" {
		qps, err := strconv.ParseFloat(v, 32)
		if err != nil || qps <= 0 {
			return nil, fmt.Errorf("azure: invalid command_qps %q", v)
		}
		burst := 1
		if b := settings["command_burst"]; b != "" {
			burst, err = strconv.Atoi(b)
			if err != nil || burst < 1 {
				return nil, fmt.Errorf("azure: invalid command_burst %q", b)
			}
		}
		limiter = flowcontrol.NewTokenBucketRateLimiter(float32(qps), burst)
	}

	var secrets []string
	if s := settings["client_secret"]; s != "" {
		secrets = append(secrets, s)
	}

	return &Provider{
		appName:       appName,
		resourceGroup: resourceGroup,
		environment:   environment,
		azPath:        azPath,
		timeout:       timeout,
		limiter:       limiter,
		secrets:       secrets,
		run:           execRun,
		log:           log,
	}, nil
}

// Ready reports whether the az binary can be found. It satisfies the
// controller-runtime healthz.Checker signature.
func (p *Provider) Ready(_ *http.Request) error {
	if _, err := exec.LookPath(p.azPath); err != nil {
		return fmt.Errorf("azure: %s not found: %w", p.azPath, err)
	}
	return nil
}

// redact replaces every known secret in s.
func (p *Provider) redact(s string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, secret := range p.secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "[REDACTED]")
		}
	}
	return s
}

// exec runs one az command under the command timeout and the rate limiter.
// On failure the returned error carries az's stderr, redacted.
func (p *Provider) exec(ctx context.Context, op string, args ...string) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("azure: %s: rate limiter: %w", op, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.log.V(1).Info("running az command", "op", op, "args", p.redact(strings.Join(args, " ")))
	start := time.Now()
	stdout, stderr, err := p.run(ctx, p.azPath, args...)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.ProviderCommandDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		msg := p.redact(strings.TrimSpace(string(stderr)))
		if msg == "" {
			msg = err.Error()
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("azure: %s: %w: %v", op, provider.ErrCommandFailed, ctx.Err())
		}
		return nil, &commandError{op: op, stderr: msg, err: err}
	}
	return stdout, nil
}

// commandError is a failed az invocation.
type commandError struct {
	op     string
	stderr string
	err    error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("azure: %s: %s", e.op, e.stderr)
}

func (e *commandError) Unwrap() []error {
	return []error{provider.ErrCommandFailed, e.err}
}

// AccountStatus runs `az account show`.
func (p *Provider) AccountStatus(ctx context.Context) (*provider.Account, error) {
	out, err := p.exec(ctx, "account show", "account", "show", "-o", "json")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrNotLoggedIn, err)
	}

	var acct struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		TenantID string `json:"tenantId"`
		User     struct {
			Name string `json:"name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(out, &acct); err != nil {
		return nil, fmt.Errorf("azure: decode account show output: %w", err)
	}
	return &provider.Account{
		ID:       acct.ID,
		Name:     acct.Name,
		TenantID: acct.TenantID,
		User:     acct.User.Name,
	}, nil
}

// Login runs `az login --service-principal`. Credentials travel only as
// process arguments and are redacted from every log line and error.
func (p *Provider) Login(ctx context.Context, creds provider.Credentials) error {
	if !creds.Complete() {
		return fmt.Errorf("azure: login: incomplete service principal credentials (%s)", creds)
	}
	p.mu.Lock()
	if !slices.Contains(p.secrets, creds.ClientSecret) {
		p.secrets = append(p.secrets, creds.ClientSecret)
	}
	p.mu.Unlock()

	_, err := p.exec(ctx, "login",
		"login", "--service-principal",
		"-u", creds.ClientID,
		"-p", creds.ClientSecret,
		"--tenant", creds.TenantID,
		"--output", "none",
	)
	return err
}

// AddHostname runs `az containerapp hostname add`.
func (p *Provider) AddHostname(ctx context.Context, hostname string) error {
	p.log.Info("adding hostname", "hostname", hostname, "app", p.appName)
	_, err := p.exec(ctx, "hostname add",
		"containerapp", "hostname", "add",
		"-n", p.appName,
		"-g", p.resourceGroup,
		"--hostname", hostname,
	)
	if err != nil {
		if strings.Contains(err.Error(), hostnameExistsMarker) {
			return fmt.Errorf("azure: hostname add %s: %w", hostname, provider.ErrHostnameExists)
		}
		return err
	}
	return nil
}

// BindHostname runs `az containerapp hostname bind`, which also issues the
// managed certificate.
func (p *Provider) BindHostname(ctx context.Context, hostname string, method provider.ValidationMethod) error {
	p.log.Info("binding hostname", "hostname", hostname, "environment", p.environment, "validationMethod", method)
	_, err := p.exec(ctx, "hostname bind",
		"containerapp", "hostname", "bind",
		"-n", p.appName,
		"-g", p.resourceGroup,
		"--hostname", hostname,
		"-e", p.environment,
		"--validation-method", string(method),
	)
	return err
}

// DeleteHostname runs `az containerapp hostname delete --yes`.
func (p *Provider) DeleteHostname(ctx context.Context, hostname string) error {
	p.log.Info("deleting hostname", "hostname", hostname, "app", p.appName)
	_, err := p.exec(ctx, "hostname delete",
		"containerapp", "hostname", "delete",
		"-n", p.appName,
		"-g", p.resourceGroup,
		"--hostname", hostname,
		"--yes",
	)
	return err
}

// certificateRow is a single entry of `az containerapp env certificate list`.
type certificateRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		SubjectName string `json:"subjectName"`
	} `json:"properties"`
}

// ListCertificates runs `az containerapp env certificate list`.
func (p *Provider) ListCertificates(ctx context.Context) ([]provider.Certificate, error) {
	out, err := p.exec(ctx, "certificate list",
		"containerapp", "env", "certificate", "list",
		"-g", p.resourceGroup,
		"--name", p.environment,
		"-o", "json",
	)
	if err != nil {
		return nil, err
	}

	var rows []certificateRow
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, fmt.Errorf("azure: decode certificate list output: %w", err)
	}

	certs := make([]provider.Certificate, 0, len(rows))
	for _, r := range rows {
		certs = append(certs, provider.Certificate{
			ID:          r.ID,
			Name:        r.Name,
			SubjectName: r.Properties.SubjectName,
		})
	}
	return certs, nil
}

// DeleteCertificate runs `az containerapp env certificate delete --yes`.
func (p *Provider) DeleteCertificate(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("azure: certificate delete: empty certificate id")
	}
	p.log.Info("deleting certificate", "certificate", id, "environment", p.environment)
	_, err := p.exec(ctx, "certificate delete",
		"containerapp", "env", "certificate", "delete",
		"-g", p.resourceGroup,
		"--name", p.environment,
		"--certificate", id,
		"--yes",
	)
	return err
}
