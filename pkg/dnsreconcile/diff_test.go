package dnsreconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hearthstack/mcfleet/pkg/types"
)

func TestIsManagedSub(t *testing.T) {
	const sub = "mc"
	cases := map[string]bool{
		"mc":                          true,
		"*.mc":                        true,
		"*.eu.mc":                     true,
		"_minecraft._tcp.vanilla.mc":  true,
		"other.sub":                   false,
		"notmc":                       false,
		"vanilla.mc.evil":             false,
	}
	for in, want := range cases {
		assert.Equalf(t, want, isManagedSub(in, sub), "input %q", in)
	}
}

func TestDiffRecords_NoopWhenEqual(t *testing.T) {
	recs := []types.DNSRecord{
		{Sub: "*.mc", Type: types.RecordA, Value: "1.1.1.1", TTL: 300},
		{ID: "x1", Sub: "_minecraft._tcp.vanilla.mc", Type: types.RecordSRV, Value: "0 5 25565 vanilla.mc", TTL: 300},
	}
	diff := diffRecords(recs, recs)
	assert.True(t, diff.empty())
}

func TestDiffRecords_AddAndRemove(t *testing.T) {
	desired := []types.DNSRecord{
		{Sub: "*.mc", Type: types.RecordA, Value: "2.2.2.2", TTL: 300},
	}
	actual := []types.DNSRecord{
		{ID: "old", Sub: "*.mc", Type: types.RecordA, Value: "1.1.1.1", TTL: 300},
	}
	diff := diffRecords(desired, actual)
	assert.Len(t, diff.Add, 1)
	assert.Len(t, diff.Remove, 1)
	assert.Equal(t, "old", diff.Remove[0].ID)
}

func TestDiffRoutes_AddRemoveUpdate(t *testing.T) {
	desired := map[string]string{
		"vanilla.mc.example.com": "10.0.0.1:25565",
		"new.mc.example.com":     "10.0.0.2:25565",
	}
	actual := []types.Route{
		{Vhost: "vanilla.mc.example.com", Backend: "10.0.0.9:25565"},
		{Vhost: "stale.mc.example.com", Backend: "10.0.0.5:25565"},
	}
	diff := diffRoutes(desired, actual)
	assert.Equal(t, map[string]string{"new.mc.example.com": "10.0.0.2:25565"}, diff.Add)
	assert.Equal(t, map[string]string{"vanilla.mc.example.com": "10.0.0.1:25565"}, diff.Update)
	assert.Equal(t, []string{"stale.mc.example.com"}, diff.Remove)
}

func TestDesiredRecords_WildcardAndSRVPerServer(t *testing.T) {
	state := types.DesiredDNSState{
		Addresses: map[string]types.ResolvedAddress{"*": {Name: "*", Host: "1.1.1.1", Port: 25565}},
		Servers:   map[string]int{"vanilla": 25565},
	}
	recs := desiredRecords("mc", state)
	var sawA, sawSRV bool
	for _, r := range recs {
		if r.Type == types.RecordA && r.Sub == "*.mc" && r.Value == "1.1.1.1" {
			sawA = true
		}
		if r.Type == types.RecordSRV && r.Sub == "_minecraft._tcp.vanilla.mc" {
			sawSRV = true
		}
	}
	assert.True(t, sawA)
	assert.True(t, sawSRV)
}
