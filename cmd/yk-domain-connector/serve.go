package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/callback"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/config"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/connector"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/dns"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/hostname"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/server"
	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/session"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	log := ctrl.Log.WithName("setup")

	log.Info("starting yk-domain-connector", "version", Version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	policy := cfg.DomainPolicy()
	log.Info("loaded config", "provider", cfg.Provider, "listenAddr", cfg.ListenAddr, "allowedDomains", policy.Domains())

	client, err := provider.New(cfg.Provider, ctrl.Log.WithName("provider-"+cfg.Provider), cfg.Settings)
	if err != nil {
		return fmt.Errorf("unable to create provider: %w", err)
	}

	creds := cfg.Credentials()
	if !creds.Complete() {
		log.Info("service principal credentials incomplete, login will fail if no session exists", "credentials", creds.String())
	}

	locks := hostname.NewLocker()
	svc := connector.NewService(ctrl.Log.WithName("connector"), connector.Options{
		Verifier:         dns.NewVerifier(ctrl.Log.WithName("dns"), dns.NewNetResolver(cfg.DNS.Nameserver), cfg.DNS.Timeout),
		Session:          session.NewManager(ctrl.Log.WithName("session"), client, creds),
		Provisioner:      hostname.NewProvisioner(ctrl.Log.WithName("provisioner"), client, locks),
		Deprovisioner:    hostname.NewDeprovisioner(ctrl.Log.WithName("deprovisioner"), client, locks),
		Notifier:         callback.NewNotifier(ctrl.Log.WithName("callback"), nil, cfg.Callback.Timeout),
		Policy:           policy,
		ProvisionTimeout: cfg.ProvisionTimeout,
	})

	ready := map[string]healthz.Checker{}
	if r, ok := client.(interface{ Ready(*http.Request) error }); ok {
		ready["provider"] = r.Ready
	}

	srv := server.New(cfg.ListenAddr, server.NewHandler(ctrl.Log.WithName("http"), svc, server.Options{ReadyChecks: ready}))

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("HTTP server exited with error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "HTTP server shutdown")
	}

	log.Info("waiting for in-flight provisioning to finish")
	svc.Wait()
	log.Info("stopped")
	return nil
}
