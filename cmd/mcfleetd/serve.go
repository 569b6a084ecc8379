package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/hearthstack/mcfleet/pkg/compose"
	"github.com/hearthstack/mcfleet/pkg/cron"
	"github.com/hearthstack/mcfleet/pkg/dnsreconcile"
	"github.com/hearthstack/mcfleet/pkg/log"
	"github.com/hearthstack/mcfleet/pkg/logtail"
	"github.com/hearthstack/mcfleet/pkg/metrics"
	"github.com/hearthstack/mcfleet/pkg/task"
	"github.com/hearthstack/mcfleet/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet control plane daemon",
	Long: `serve starts the long-lived processes: the docker-compose driver,
the task manager, the durable cron scheduler, the DNS/routing reconciler
(if enabled), the log tail dispatcher, and the Prometheus metrics endpoint.
It blocks until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("mcfleetd")

	composeDriver, err := compose.NewDriver(cfg.Servers.RootPath)
	if err != nil {
		return fmt.Errorf("start compose driver: %w", err)
	}
	defer composeDriver.Close()

	taskManager := task.NewManager()

	cronManager, err := cron.NewManager(cfg.Cron.DatabasePath)
	if err != nil {
		return fmt.Errorf("start cron manager: %w", err)
	}
	registerCronKinds(cronManager, composeDriver, taskManager)
	if err := cronManager.Start(); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}
	defer cronManager.Stop(10 * time.Second)

	offsetStore, err := logtail.OpenBoltOffsetStore(cfg.LogTail.OffsetsDatabasePath)
	if err != nil {
		return fmt.Errorf("open log tail offset store: %w", err)
	}
	defer offsetStore.Close()

	dispatcher := logtail.New(offsetStore, time.Duration(cfg.LogTail.PollIntervalMillis)*time.Millisecond, func(l logtail.Line) {
		logger.Debug().Str("server_id", l.ServerID).Str("line", l.Text).Msg("server log line")
	})
	defer dispatcher.StopAll()
	if err := startLogTailing(composeDriver, dispatcher); err != nil {
		logger.Warn().Err(err).Msg("failed to start log tailing for one or more servers")
	}

	var reconciler *dnsreconcile.Reconciler
	if cfg.DNS.Enabled {
		reconciler, err = buildReconciler(composeDriver)
		if err != nil {
			return fmt.Errorf("build dns reconciler: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go reconciler.Run(ctx)
		logger.Info().Msg("dns/routing reconciler started")
	}

	metricsServer := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer metricsServer.Close()

	logger.Info().Str("metrics_addr", cfg.Metrics.ListenAddr).Msg("mcfleetd is running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	if reconciler != nil {
		reconciler.Stop()
	}
	return nil
}

// startLogTailing registers a log watcher for every server already on disk.
func startLogTailing(driver *compose.Driver, dispatcher *logtail.Dispatcher) error {
	ids, err := driver.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		path, err := driver.LogsTailPath(id)
		if err != nil {
			continue
		}
		if err := dispatcher.Watch(context.Background(), id, path); err != nil {
			log.WithServerID(id).Warn().Err(err).Msg("failed to start log tail watcher")
		}
	}
	return nil
}

// buildReconciler wires a Reconciler from configuration, picking the fake
// or real DNS provider and router implementations by kind.
func buildReconciler(driver *compose.Driver) (*dnsreconcile.Reconciler, error) {
	var provider dnsreconcile.Provider
	switch cfg.DNS.Provider.Kind {
	case "rfc2136":
		provider = dnsreconcile.NewRFC2136Provider(dnsreconcile.RFC2136Config{
			Domain:   cfg.DNS.Domain,
			Server:   cfg.DNS.Provider.Nameserver,
			TSIGName: dns.Fqdn(cfg.DNS.Provider.TSIGName),
			TSIGKey:  cfg.DNS.Provider.TSIGKey,
			TTL:      uint32(cfg.DNS.DefaultTTL),
		})
	default:
		provider = dnsreconcile.NewFakeProvider(cfg.DNS.Domain)
	}

	var router dnsreconcile.Router
	switch cfg.DNS.Router.Kind {
	case "grpc":
		client, err := dnsreconcile.NewGRPCRouterClient(cfg.DNS.Router.Address)
		if err != nil {
			return nil, err
		}
		router = client
	default:
		router = dnsreconcile.NewFakeRouter()
	}

	addrs := make([]types.AddressSpec, len(cfg.DNS.Addresses))
	for i, a := range cfg.DNS.Addresses {
		addrs[i] = types.AddressSpec{
			Name:         a.Name,
			Kind:         types.AddressKind(a.Kind),
			Value:        a.Value,
			Port:         a.Port,
			InternalPort: a.InternalPort,
			AddrName:     a.AddrName,
		}
	}

	var natmap dnsreconcile.NATMapClient
	for _, a := range addrs {
		if a.Kind == types.AddressNATMap {
			natmap = dnsreconcile.NewFakeNATMapClient()
			break
		}
	}

	return dnsreconcile.New(dnsreconcile.Config{
		Domain:        cfg.DNS.Domain,
		Subdomain:     cfg.DNS.ManagedSubdomain,
		Addresses:     addrs,
		PollInterval:  time.Duration(cfg.DNS.PollIntervalSecs) * time.Second,
		PostPushDelay: time.Duration(cfg.DNS.PostPushDelaySecs) * time.Second,
		ProbeRate:     cfg.DNS.ProbeRate,
	}, driver, provider, router, natmap), nil
}
