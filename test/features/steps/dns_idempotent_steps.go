package steps

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cucumber/godog"

	"github.com/hearthstack/mcfleet/pkg/dnsreconcile"
	"github.com/hearthstack/mcfleet/pkg/types"
)

type fakeFleetLister struct {
	instances map[string]*types.ServerInstance
}

func (f *fakeFleetLister) List() ([]string, error) {
	ids := make([]string, 0, len(f.instances))
	for id := range f.instances {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeFleetLister) Get(serverID string) (*types.ServerInstance, error) {
	inst, ok := f.instances[serverID]
	if !ok {
		return nil, fmt.Errorf("no such server %q", serverID)
	}
	return inst, nil
}

// countingProvider wraps a FakeProvider and counts writes issued through it,
// so a test can assert a converged reconciler stops pushing once actual
// state matches desired state.
type countingProvider struct {
	*dnsreconcile.FakeProvider
	listCalls   int32
	addCalls    int32
	removeCalls int32
}

func (c *countingProvider) ListRecords(ctx context.Context) ([]types.DNSRecord, error) {
	atomic.AddInt32(&c.listCalls, 1)
	return c.FakeProvider.ListRecords(ctx)
}

func (c *countingProvider) AddRecords(ctx context.Context, records []types.DNSRecord) error {
	atomic.AddInt32(&c.addCalls, 1)
	return c.FakeProvider.AddRecords(ctx, records)
}

func (c *countingProvider) RemoveRecords(ctx context.Context, ids []string) error {
	atomic.AddInt32(&c.removeCalls, 1)
	return c.FakeProvider.RemoveRecords(ctx, ids)
}

type dnsIdempotentContext struct {
	lister     *fakeFleetLister
	provider   *countingProvider
	reconciler *dnsreconcile.Reconciler
	cancel     context.CancelFunc
}

func (dc *dnsIdempotentContext) reset() {
	dc.lister = &fakeFleetLister{instances: make(map[string]*types.ServerInstance)}
	dc.provider = &countingProvider{FakeProvider: dnsreconcile.NewFakeProvider("example.com")}
	dc.reconciler = nil
	dc.cancel = nil
}

func (dc *dnsIdempotentContext) aFleetServerExposingGamePort(serverID string, gamePort int) error {
	dc.lister.instances[serverID] = &types.ServerInstance{ID: serverID, GamePort: gamePort}
	return nil
}

func (dc *dnsIdempotentContext) aDNSReconcilerManagingSubdomainOnDomainWithAddressOnPort(subdomain, domain, host string, port int) error {
	addrs := []types.AddressSpec{
		{Name: "", Kind: types.AddressManual, Value: host, Port: port},
	}
	cfg := dnsreconcile.Config{
		Domain:        domain,
		Subdomain:     subdomain,
		Addresses:     addrs,
		PollInterval:  15 * time.Millisecond,
		PostPushDelay: 15 * time.Millisecond,
	}
	dc.reconciler = dnsreconcile.New(cfg, dc.lister, dc.provider, nil, nil)
	return nil
}

func (dc *dnsIdempotentContext) theReconcilerCompletesAtLeastTwoReconciliationCycles() error {
	ctx, cancel := context.WithCancel(context.Background())
	dc.cancel = cancel
	go dc.reconciler.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&dc.provider.listCalls) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	dc.reconciler.Stop()
	cancel()

	if atomic.LoadInt32(&dc.provider.listCalls) < 2 {
		return fmt.Errorf("reconciler did not complete two cycles within the deadline")
	}
	return nil
}

func (dc *dnsIdempotentContext) theProviderReceivedExactlyAddRecordsCalls(want int) error {
	got := int(atomic.LoadInt32(&dc.provider.addCalls))
	if got != want {
		return fmt.Errorf("expected %d add-records calls, got %d", want, got)
	}
	return nil
}

func (dc *dnsIdempotentContext) theProviderReceivedRemoveRecordsCalls(want int) error {
	got := int(atomic.LoadInt32(&dc.provider.removeCalls))
	if got != want {
		return fmt.Errorf("expected %d remove-records calls, got %d", want, got)
	}
	return nil
}

// InitializeDNSIdempotentPushScenario registers the reconciliation
// idempotency scenario.
func InitializeDNSIdempotentPushScenario(sc *godog.ScenarioContext) {
	dc := &dnsIdempotentContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		dc.reset()
		return ctx, nil
	})

	sc.Step(`^a fleet server "([^"]*)" exposing game port (\d+)$`, dc.aFleetServerExposingGamePort)
	sc.Step(`^a DNS reconciler managing subdomain "([^"]*)" on domain "([^"]*)" with address "([^"]*)" on port (\d+)$`, dc.aDNSReconcilerManagingSubdomainOnDomainWithAddressOnPort)
	sc.Step(`^the reconciler completes at least two reconciliation cycles$`, dc.theReconcilerCompletesAtLeastTwoReconciliationCycles)
	sc.Step(`^the provider received exactly (\d+) add-records call$`, dc.theProviderReceivedExactlyAddRecordsCalls)
	sc.Step(`^the provider received exactly (\d+) add-records calls$`, dc.theProviderReceivedExactlyAddRecordsCalls)
	sc.Step(`^the provider received (\d+) remove-records calls$`, dc.theProviderReceivedRemoveRecordsCalls)
}
