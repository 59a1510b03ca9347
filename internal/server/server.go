// Package server exposes the connector over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/connector"
)

// MaxBodyBytes limits request bodies.
const MaxBodyBytes = 1 << 20

const (
	readHeaderTimeout = 30 * time.Second
	bodyReadTimeout   = 30 * time.Second
	idleTimeout       = 120 * time.Second
)

// Response messages.
const (
	msgDomainRequired = "Domain parameter is required"
	msgInvalidBody    = "Invalid request body"
	msgDNSFailed      = "DNS verification failed"
	msgInternal       = "Internal Server Error"
)

// Service is the part of connector.Service the handlers call.
type Service interface {
	Provision(ctx context.Context, req connector.DomainRequest) (*connector.Ack, error)
	Delete(ctx context.Context, hostname string) error
}

// Options configures the handler.
type Options struct {
	// ReadyChecks are served on /readyz. /healthz always answers ping.
	ReadyChecks map[string]healthz.Checker
}

// provisionRequest is the body of POST /api/domain.
type provisionRequest struct {
	Domain        string `json:"domain"`
	Callback      string `json:"callback,omitempty"`
	ExpectedCNAME string `json:"expectedCnameRecord,omitempty"`
	ExpectedA     string `json:"expectedARecord,omitempty"`
	ExpectedTXT   string `json:"expectedTxtRecord"`
}

// deleteRequest is the body of DELETE /api/domain.
type deleteRequest struct {
	Domain string `json:"domain"`
}

type messageResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	svc Service
	log logr.Logger
}

// NewHandler returns the HTTP handler of the connector, instrumented with
// OpenTelemetry.
func NewHandler(log logr.Logger, svc Service, opts Options) http.Handler {
	h := &handler{svc: svc, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/domain", h.provision)
	mux.HandleFunc("POST /api/domain/process", h.provision)
	mux.HandleFunc("DELETE /api/domain", h.delete)
	mux.HandleFunc("DELETE /api/domain/delete", h.delete)

	health := http.StripPrefix("/healthz", &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}})
	mux.Handle("GET /healthz", health)
	mux.Handle("GET /healthz/", health)

	ready := map[string]healthz.Checker{"ping": healthz.Ping}
	for name, check := range opts.ReadyChecks {
		ready[name] = check
	}
	readyz := http.StripPrefix("/readyz", &healthz.Handler{Checks: ready})
	mux.Handle("GET /readyz", readyz)
	mux.Handle("GET /readyz/", readyz)

	mux.Handle("GET /metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(mux, "domain-connector",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return strings.HasPrefix(r.URL.Path, "/api/")
		}),
	)
}

// New returns an http.Server for handler with the connector's timeouts.
// Only headers and request bodies are time-limited at the connection. A
// response waits for its operation, which the DNS, command, lock and
// provisioning timeouts bound.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}

func (h *handler) provision(w http.ResponseWriter, r *http.Request) {
	var body provisionRequest
	if !h.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Domain) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgDomainRequired})
		return
	}

	ack, err := h.svc.Provision(r.Context(), connector.DomainRequest{
		Hostname:      body.Domain,
		ExpectedTXT:   body.ExpectedTXT,
		ExpectedA:     body.ExpectedA,
		ExpectedCNAME: body.ExpectedCNAME,
		CallbackURL:   body.Callback,
	})
	if err != nil {
		h.fail(w, "provision", body.Domain, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: connector.MessageAccepted, JobID: ack.JobID})
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	var body deleteRequest
	if !h.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Domain) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgDomainRequired})
		return
	}

	if err := h.svc.Delete(r.Context(), body.Domain); err != nil {
		h.fail(w, "delete", body.Domain, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: connector.MessageDeleted})
}

// decode reads a JSON body into v. An empty body decodes to the zero value.
// The body must arrive within bodyReadTimeout; the read deadline is cleared
// afterwards so it cannot cancel the request while the operation runs.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Now().Add(bodyReadTimeout))
	defer func() { _ = rc.SetReadDeadline(time.Time{}) }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.log.V(1).Info("rejecting request body", "path", r.URL.Path, "error", err.Error())
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{Error: msgInvalidBody})
		return false
	}
	return true
}

// fail maps a connector error to a status code and error body.
func (h *handler) fail(w http.ResponseWriter, op, domain string, err error) {
	switch {
	case errors.Is(err, connector.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, connector.ErrDomainNotAllowed):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, connector.ErrDNSVerificationFailed):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: msgDNSFailed})
	default:
		h.log.Error(err, "request failed", "operation", op, "domain", domain)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInternal})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
