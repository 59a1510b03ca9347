package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	logrtesting "github.com/go-logr/logr/testing"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/callback"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/connector"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/dns"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/hostname"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
	_ "github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider/providers"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/server"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/session"
)

// fakeAz is a minimal stateful az CLI. State lives in $FAKE_AZ_STATE: a
// "logged_in" marker, one "host_<name>" file per added hostname (holding the
// validation method once bound), "certs.json" for the certificate list,
// "fail_bind" to make bind fail and "calls" with one line per invocation.
const fakeAz = `#!/bin/sh
state="$FAKE_AZ_STATE"
echo "$*" >> "$state/calls"

host=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--hostname" ]; then host="$a"; fi
  if [ "$prev" = "--validation-method" ]; then method="$a"; fi
  prev="$a"
done

case "$1 $2 $3" in
  "account show "*)
    if [ -f "$state/logged_in" ]; then
      echo '{"id":"sub-1","name":"fake","tenantId":"tenant-1","user":{"name":"sp"}}'
      exit 0
    fi
    echo "Please run 'az login' to setup account." >&2
    exit 1 ;;
  "login --service-principal"*)
    touch "$state/logged_in"
    exit 0 ;;
  "containerapp hostname add")
    if [ -f "$state/host_$host" ]; then
      echo "ERROR: Hostname $host already exists in container app." >&2
      exit 1
    fi
    : > "$state/host_$host"
    exit 0 ;;
  "containerapp hostname bind")
    if [ -f "$state/fail_bind" ]; then
      echo "ERROR: certificate validation failed for $host" >&2
      exit 1
    fi
    if [ ! -f "$state/host_$host" ]; then
      echo "ERROR: hostname $host not found" >&2
      exit 1
    fi
    echo "$method" > "$state/host_$host"
    exit 0 ;;
  "containerapp hostname delete")
    rm -f "$state/host_$host"
    exit 0 ;;
  "containerapp env certificate")
    if [ "$4" = "list" ]; then
      if [ -f "$state/certs.json" ]; then cat "$state/certs.json"; else echo '[]'; fi
    fi
    exit 0 ;;
esac
echo "unexpected command: $*" >&2
exit 2
`

// recordResolver serves fixed records.
type recordResolver struct {
	txt map[string][]string
	a   map[string][]string
}

func (r recordResolver) LookupIPv4(_ context.Context, name string) ([]string, error) {
	if v, ok := r.a[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("lookup %s: no such host", name)
}

func (r recordResolver) LookupCNAME(_ context.Context, name string) ([]string, error) {
	return nil, fmt.Errorf("lookup %s: no such host", name)
}

func (r recordResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if v, ok := r.txt[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("lookup %s: no such host", name)
}

type stack struct {
	api      *httptest.Server
	svc      *connector.Service
	state    string
	payloads chan callback.Payload
	hook     *httptest.Server
}

func newStack(t *testing.T, resolver dns.Resolver) *stack {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake az requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	azPath := filepath.Join(dir, "az")
	if err := os.WriteFile(azPath, []byte(fakeAz), 0755); err != nil {
		t.Fatal(err)
	}
	state := filepath.Join(dir, "state")
	if err := os.Mkdir(state, 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FAKE_AZ_STATE", state)

	log := logrtesting.NewTestLogger(t)
	client, err := provider.New("azure-cli", log, map[string]string{
		"app_name":       "my-app",
		"resource_group": "my-rg",
		"environment":    "my-env",
		"az_path":        azPath,
		"client_secret":  "s3cr3t",
	})
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}

	creds := provider.Credentials{ClientID: "client-id", ClientSecret: "s3cr3t", TenantID: "tenant-1"}
	locks := hostname.NewLocker()
	svc := connector.NewService(log, connector.Options{
		Verifier:      dns.NewVerifier(log, resolver, 0),
		Session:       session.NewManager(log, client, creds),
		Provisioner:   hostname.NewProvisioner(log, client, locks),
		Deprovisioner: hostname.NewDeprovisioner(log, client, locks),
		Notifier:      callback.NewNotifier(log, nil, 0),
	})

	s := &stack{svc: svc, state: state, payloads: make(chan callback.Payload, 4)}
	s.hook = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p callback.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.payloads <- p
	}))
	s.api = httptest.NewServer(server.NewHandler(log, svc, server.Options{}))
	t.Cleanup(func() {
		s.api.Close()
		svc.Wait()
		s.hook.Close()
	})
	return s
}

func (s *stack) request(t *testing.T, method string, body map[string]string) (int, map[string]string) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(method, s.api.URL+"/api/domain", strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.api.Client().Do(req)
	if err != nil {
		t.Fatalf("%s /api/domain: %v", method, err)
	}
	defer resp.Body.Close()

	out := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, out
}

func (s *stack) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.state, "calls"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func (s *stack) boundMethod(t *testing.T, host string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.state, "host_"+host))
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(data)), true
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestFullLifecycle(t *testing.T) {
	s := newStack(t, recordResolver{
		txt: map[string][]string{"asuid.app.example.com": {"abc123"}},
		a:   map[string][]string{"app.example.com": {"20.1.2.3"}},
	})

	// Step 1: provision, logging in first.
	status, body := s.request(t, http.MethodPost, map[string]string{
		"domain":            "app.example.com",
		"expectedTxtRecord": "abc123",
		"expectedARecord":   "20.1.2.3",
		"callback":          s.hook.URL,
	})
	if status != http.StatusAccepted {
		t.Fatalf("provision: expected 202, got %d (%v)", status, body)
	}
	if body["jobId"] == "" {
		t.Error("expected a job id")
	}
	s.svc.Wait()

	p := <-s.payloads
	if p.Status != callback.StatusSuccess || p.Domain != "app.example.com" {
		t.Fatalf("unexpected callback payload: %+v", p)
	}
	if method, ok := s.boundMethod(t, "app.example.com"); !ok || method != "HTTP" {
		t.Fatalf("expected hostname bound with HTTP, got %q (exists=%v)", method, ok)
	}

	calls := s.calls(t)
	if countPrefix(calls, "login --service-principal") != 1 {
		t.Errorf("expected one login, calls: %v", calls)
	}
	for _, c := range calls {
		if strings.Contains(c, "login") && !strings.Contains(c, "-p s3cr3t") {
			t.Errorf("login call missing secret argument: %q", c)
		}
	}

	// Step 2: provision again; the existing hostname is tolerated and bound again.
	status, _ = s.request(t, http.MethodPost, map[string]string{
		"domain":            "app.example.com",
		"expectedTxtRecord": "abc123",
		"callback":          s.hook.URL,
	})
	if status != http.StatusAccepted {
		t.Fatalf("re-provision: expected 202, got %d", status)
	}
	s.svc.Wait()
	if p := <-s.payloads; p.Status != callback.StatusSuccess {
		t.Fatalf("re-provision: expected success callback, got %+v", p)
	}
	if method, _ := s.boundMethod(t, "app.example.com"); method != "CNAME" {
		t.Errorf("expected re-bind with CNAME, got %q", method)
	}
	if n := countPrefix(s.calls(t), "login"); n != 1 {
		t.Errorf("expected the session to be reused, got %d logins", n)
	}

	// Step 3: delete, including the managed certificate.
	certs := `[{"id":"/certs/mc-app","name":"mc-app","properties":{"subjectName":"app.example.com"}}]`
	if err := os.WriteFile(filepath.Join(s.state, "certs.json"), []byte(certs), 0644); err != nil {
		t.Fatal(err)
	}
	status, body = s.request(t, http.MethodDelete, map[string]string{"domain": "app.example.com"})
	if status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d (%v)", status, body)
	}
	if _, ok := s.boundMethod(t, "app.example.com"); ok {
		t.Error("expected hostname to be removed")
	}
	if n := countPrefix(s.calls(t), "containerapp env certificate delete"); n != 1 {
		t.Errorf("expected one certificate delete, got %d", n)
	}
}

func TestDNSFailureMakesNoProviderCalls(t *testing.T) {
	s := newStack(t, recordResolver{
		txt: map[string][]string{"asuid.app.example.com": {"other"}},
	})

	status, body := s.request(t, http.MethodPost, map[string]string{
		"domain":            "app.example.com",
		"expectedTxtRecord": "abc123",
		"callback":          s.hook.URL,
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%v)", status, body)
	}
	s.svc.Wait()
	if calls := s.calls(t); len(calls) != 0 {
		t.Errorf("expected no az calls, got %v", calls)
	}
}

func TestBindFailureReportsError(t *testing.T) {
	s := newStack(t, recordResolver{
		txt: map[string][]string{"asuid.broken.example.com": {"abc123"}},
	})
	if err := os.WriteFile(filepath.Join(s.state, "fail_bind"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	status, _ := s.request(t, http.MethodPost, map[string]string{
		"domain":            "broken.example.com",
		"expectedTxtRecord": "abc123",
		"callback":          s.hook.URL,
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	s.svc.Wait()

	p := <-s.payloads
	if p.Status != callback.StatusError || p.Domain != "broken.example.com" {
		t.Fatalf("expected error callback, got %+v", p)
	}
	select {
	case extra := <-s.payloads:
		t.Fatalf("expected exactly one callback, got another: %+v", extra)
	default:
	}
}
