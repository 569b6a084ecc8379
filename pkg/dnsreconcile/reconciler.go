// Package dnsreconcile keeps a DNS provider and an L7 router in lock-step
// with the live fleet: it pulls desired state from the container driver and
// configured addresses, pulls actual state from the provider and router,
// diffs the two, and pushes the minimal set of changes. A single loop owns
// both a periodic poll and an externally bumped update queue, serializing
// every push under one mutex so concurrent triggers never race.
package dnsreconcile

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/hearthstack/mcfleet/pkg/log"
	"github.com/hearthstack/mcfleet/pkg/metrics"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// Config configures a Reconciler's scope and timing.
type Config struct {
	Domain        string
	Subdomain     string
	Addresses     []types.AddressSpec
	PollInterval  time.Duration
	PostPushDelay time.Duration
	MaxBackoff    time.Duration
	// ProbeRate caps per-second server-state reads during desired-state
	// assembly, so a large fleet's probes don't all fire in the same tick.
	// Zero disables limiting.
	ProbeRate float64
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PostPushDelay <= 0 {
		c.PostPushDelay = 10 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Reconciler runs the DNS/routing reconciliation loop described above.
type Reconciler struct {
	cfg      Config
	servers  ServerLister
	provider Provider
	router   Router
	natmap   NATMapClient

	pushMu  sync.Mutex // serializes provider/router writes across cycles (invariant 5)
	limiter *rate.Limiter

	mu        sync.Mutex
	queued    int
	wakeCh    chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
	backoff   *backoff.ExponentialBackOff
}

// New builds a Reconciler. natmap may be nil if no address uses
// AddressNATMap.
func New(cfg Config, servers ServerLister, provider Provider, router Router, natmap NATMapClient) *Reconciler {
	cfg = cfg.withDefaults()
	bo := backoff.NewExponentialBackOff()
	bo.Multiplier = 1.5
	bo.MaxElapsedTime = 0 // never gives up; cap is on interval, not total elapsed
	bo.MaxInterval = cfg.MaxBackoff

	var limiter *rate.Limiter
	if cfg.ProbeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRate), 1)
	}

	return &Reconciler{
		cfg:      cfg,
		servers:  servers,
		provider: provider,
		router:   router,
		natmap:   natmap,
		limiter:  limiter,
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		backoff:  bo,
	}
}

// QueueUpdate bumps the update queue counter and wakes the loop for an
// extra cycle outside its normal poll cadence. Many calls between drains
// coalesce into one push opportunity.
func (r *Reconciler) QueueUpdate() {
	r.mu.Lock()
	r.queued++
	r.mu.Unlock()
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled or Stop is called. It blocks
// until the loop has fully exited and any in-flight cycle has finished.
func (r *Reconciler) Run(ctx context.Context) {
	r.mu.Lock()
	r.stoppedCh = make(chan struct{})
	r.mu.Unlock()
	defer close(r.stoppedCh)

	logger := log.WithComponent("dnsreconcile")

	for {
		outcome := r.runCycle(ctx)

		var wait time.Duration
		switch outcome {
		case cycleError:
			wait = r.backoff.NextBackOff()
			metrics.ReconcilerBackoffSeconds.Set(wait.Seconds())
		case cyclePushed:
			r.backoff.Reset()
			metrics.ReconcilerBackoffSeconds.Set(0)
			wait = r.cfg.PostPushDelay
		case cycleNoop:
			metrics.ReconcilerBackoffSeconds.Set(0)
			wait = r.cfg.PollInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug().Msg("reconciler loop stopping: context cancelled")
			return
		case <-r.stopCh:
			timer.Stop()
			logger.Debug().Msg("reconciler loop stopping: stop requested")
			return
		case <-timer.C:
		case <-r.wakeCh:
			timer.Stop()
		}
	}
}

// Stop signals the loop to terminate after its current cycle and waits for
// it to fully exit.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.mu.Lock()
	stopped := r.stoppedCh
	r.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
}

// cycleOutcome is runCycle's disposition, used by Run to pick the next wait.
type cycleOutcome int

const (
	cycleNoop cycleOutcome = iota
	cyclePushed
	cycleError
)

// runCycle assembles desired/actual state, diffs, and pushes if needed. It
// never panics or propagates an error to the caller: failures are logged
// and reflected only in the outcome returned to Run's backoff decision.
func (r *Reconciler) runCycle(ctx context.Context) cycleOutcome {
	logger := log.WithComponent("dnsreconcile")
	start := time.Now()

	r.mu.Lock()
	drained := r.queued
	r.queued = 0
	r.mu.Unlock()
	if drained > 0 {
		logger.Debug().Int("drained", drained).Msg("reconciliation cycle draining queued updates")
	}

	desired, actual, err := r.assembleBoth(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("reconciliation cycle failed during state assembly")
		metrics.ReconciliationCyclesTotal.WithLabelValues("error").Inc()
		metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
		return cycleError
	}

	recDiff := diffRecords(desiredRecords(r.cfg.Subdomain, desired), actual.Records)
	var rtDiff routeDiff
	if r.router != nil {
		rtDiff = diffRoutes(desiredRoutes(r.cfg.Subdomain, r.cfg.Domain, desired), actual.Routes)
	}

	if recDiff.empty() && rtDiff.empty() {
		logger.Debug().Msg("reconciliation cycle: desired matches actual, no write issued")
		metrics.ReconciliationCyclesTotal.WithLabelValues("noop").Inc()
		metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
		return cycleNoop
	}

	if err := r.push(ctx, recDiff, rtDiff); err != nil {
		logger.Warn().Err(err).Msg("reconciliation cycle failed during push")
		metrics.ReconciliationCyclesTotal.WithLabelValues("error").Inc()
		metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
		return cycleError
	}

	logger.Info().Int("records_added", len(recDiff.Add)).Int("records_removed", len(recDiff.Remove)).
		Int("routes_added", len(rtDiff.Add)).Int("routes_removed", len(rtDiff.Remove)).Int("routes_updated", len(rtDiff.Update)).
		Msg("reconciliation cycle pushed changes")
	metrics.ReconciliationCyclesTotal.WithLabelValues("pushed").Inc()
	metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
	return cyclePushed
}

// assembleBoth runs desired- and actual-state assembly concurrently, per
// spec.md 4.5.4's "desired + actual in parallel".
func (r *Reconciler) assembleBoth(ctx context.Context) (types.DesiredDNSState, types.ActualDNSState, error) {
	var (
		desired    types.DesiredDNSState
		actual     types.ActualDNSState
		desiredErr error
		actualErr  error
		wg         sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		desired, desiredErr = assembleDesired(ctx, r.servers, r.cfg.Addresses, r.natmap, r.limiter)
	}()
	go func() {
		defer wg.Done()
		actual, actualErr = assembleActual(ctx, r.provider, r.router, r.cfg.Subdomain, r.cfg.Domain)
	}()
	wg.Wait()

	if desiredErr != nil {
		return types.DesiredDNSState{}, types.ActualDNSState{}, desiredErr
	}
	if actualErr != nil {
		return types.DesiredDNSState{}, types.ActualDNSState{}, actualErr
	}
	return desired, actual, nil
}

// push issues the DNS and router writes concurrently, serialized against
// any other cycle's push via pushMu (invariant: provider writes are
// totally ordered across concurrent cycles — there is in practice only
// ever one cycle running at a time, since runCycle is called synchronously
// from the single loop goroutine, but pushMu also protects callers that
// invoke QueueUpdate-triggered out-of-band pushes in future extensions).
func (r *Reconciler) push(ctx context.Context, rec recordDiff, rt routeDiff) error {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()

	var dnsErr, routeErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		dnsErr = r.pushDNS(ctx, rec)
	}()
	go func() {
		defer wg.Done()
		if r.router != nil && !rt.empty() {
			routeErr = r.pushRoutes(ctx, rt)
		}
	}()
	wg.Wait()

	if dnsErr != nil {
		return dnsErr
	}
	return routeErr
}

// pushDNS issues the record diff. When the provider supports atomic
// updates, an add record whose (sub, type) matches a to-be-removed record
// is paired into a single UpdateRecords call instead of a separate
// remove+add; everything else still goes through plain AddRecords /
// RemoveRecords.
func (r *Reconciler) pushDNS(ctx context.Context, diff recordDiff) error {
	removeByFamily := make(map[string]types.DNSRecord, len(diff.Remove))
	for _, rrec := range diff.Remove {
		removeByFamily[rrec.Sub+"|"+string(rrec.Type)] = rrec
	}

	up, canUpdate := r.provider.(UpdatingProvider)

	var toUpdate, toAdd []types.DNSRecord
	paired := make(map[string]bool, len(diff.Remove))
	for _, addRec := range diff.Add {
		if canUpdate {
			if stale, ok := removeByFamily[addRec.Sub+"|"+string(addRec.Type)]; ok {
				id := stale.ID
				if id == "" {
					id = recordID(stale)
				}
				addRec.ID = id
				toUpdate = append(toUpdate, addRec)
				paired[addRec.Sub+"|"+string(addRec.Type)] = true
				continue
			}
		}
		toAdd = append(toAdd, addRec)
	}

	var toRemove []string
	for key, rrec := range removeByFamily {
		if paired[key] {
			continue
		}
		id := rrec.ID
		if id == "" {
			id = recordID(rrec)
		}
		toRemove = append(toRemove, id)
	}

	if len(toUpdate) > 0 {
		if err := up.UpdateRecords(ctx, toUpdate); err != nil {
			return err
		}
	}
	if len(toRemove) > 0 {
		if err := r.provider.RemoveRecords(ctx, toRemove); err != nil {
			return err
		}
	}
	if len(toAdd) > 0 {
		if err := r.provider.AddRecords(ctx, toAdd); err != nil {
			return err
		}
	}
	return nil
}

// pushRoutes merges the desired managed-subdomain routes into the router's
// full current table (so unmanaged vhosts are left untouched) and pushes
// the merged table with a single OverrideRoutes call, matching the
// router's only write capability.
func (r *Reconciler) pushRoutes(ctx context.Context, diff routeDiff) error {
	full, err := r.router.Routes(ctx)
	if err != nil {
		return err
	}
	for _, rem := range diff.Remove {
		delete(full, rem)
	}
	for vhost, backend := range diff.Add {
		full[vhost] = backend
	}
	for vhost, backend := range diff.Update {
		full[vhost] = backend
	}
	return r.router.OverrideRoutes(ctx, full)
}
