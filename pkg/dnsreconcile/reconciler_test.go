package dnsreconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthstack/mcfleet/pkg/types"
)

type fakeServerLister struct {
	instances map[string]*types.ServerInstance
}

func (f *fakeServerLister) List() ([]string, error) {
	ids := make([]string, 0, len(f.instances))
	for id := range f.instances {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeServerLister) Get(serverID string) (*types.ServerInstance, error) {
	inst, ok := f.instances[serverID]
	if !ok {
		return nil, assert.AnError
	}
	return inst, nil
}

func testConfig() Config {
	return Config{
		Domain:        "example.com",
		Subdomain:     "mc",
		PollInterval:  10 * time.Millisecond,
		PostPushDelay: 10 * time.Millisecond,
		Addresses: []types.AddressSpec{
			{Name: "*", Kind: types.AddressManual, Value: "1.1.1.1", Port: 25565},
		},
	}
}

// TestReconciler_IdempotentPush mirrors scenario S4: the first cycle writes
// one A record and one SRV record, the second observes desired == actual
// and writes nothing.
func TestReconciler_IdempotentPush(t *testing.T) {
	servers := &fakeServerLister{instances: map[string]*types.ServerInstance{
		"vanilla": {ID: "vanilla", GamePort: 25565},
	}}
	provider := NewFakeProvider("example.com")
	router := NewFakeRouter()

	r := New(testConfig(), servers, provider, router, nil)

	outcome := r.runCycle(context.Background())
	assert.Equal(t, cyclePushed, outcome)

	recs, err := provider.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	outcome = r.runCycle(context.Background())
	assert.Equal(t, cycleNoop, outcome)

	recs, err = provider.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2, "second cycle must not duplicate or churn records")
}

func TestReconciler_NatMapFailureDropsAddressNotCycle(t *testing.T) {
	servers := &fakeServerLister{instances: map[string]*types.ServerInstance{
		"vanilla": {ID: "vanilla", GamePort: 25565},
	}}
	provider := NewFakeProvider("example.com")
	router := NewFakeRouter()
	nm := NewFakeNATMapClient()
	nm.SetError(assert.AnError)

	cfg := testConfig()
	cfg.Addresses = []types.AddressSpec{
		{Name: "*", Kind: types.AddressNATMap, InternalPort: 25565},
	}

	r := New(cfg, servers, provider, router, nm)
	outcome := r.runCycle(context.Background())
	// No addresses resolved means no records to add and no servers addressed;
	// nothing to push, so the cycle is a noop rather than an error.
	assert.Equal(t, cycleNoop, outcome)
}

func TestReconciler_QueueUpdateWakesLoop(t *testing.T) {
	servers := &fakeServerLister{instances: map[string]*types.ServerInstance{}}
	provider := NewFakeProvider("example.com")
	router := NewFakeRouter()

	cfg := testConfig()
	cfg.PollInterval = time.Hour
	cfg.PostPushDelay = time.Hour
	r := New(cfg, servers, provider, router, nil)

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	r.QueueUpdate()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler loop did not stop after context cancellation")
	}
}
