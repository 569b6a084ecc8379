package dnsreconcile

import (
	"fmt"

	"github.com/hearthstack/mcfleet/pkg/types"
)

const (
	minecraftSRVPrefix = "_minecraft._tcp."
	defaultTTL         = 300
	srvPriority        = 0
	srvWeight          = 5
)

// desiredRecords expands a DesiredDNSState into the concrete A/SRV records
// it implies: a wildcard A record per address, and a SRV record per server
// pointing at each address.
func desiredRecords(sub string, state types.DesiredDNSState) []types.DNSRecord {
	var out []types.DNSRecord
	for _, addr := range state.Addresses {
		aSub := "*." + sub
		if addr.Name != "" && addr.Name != "*" {
			aSub = "*." + addr.Name + "." + sub
		}
		out = append(out, types.DNSRecord{Sub: aSub, Type: types.RecordA, Value: addr.Host, TTL: defaultTTL})

		for serverID, gamePort := range state.Servers {
			srvSub := fmt.Sprintf("%s%s.%s", minecraftSRVPrefix, serverID, sub)
			target := fmt.Sprintf("%s.%s", serverID, sub)
			if addr.Name != "" && addr.Name != "*" {
				srvSub = fmt.Sprintf("%s%s.%s.%s", minecraftSRVPrefix, serverID, addr.Name, sub)
				target = fmt.Sprintf("%s.%s.%s", serverID, addr.Name, sub)
			}
			value := fmt.Sprintf("%d %d %d %s", srvPriority, srvWeight, gamePort, target)
			out = append(out, types.DNSRecord{Sub: srvSub, Type: types.RecordSRV, Value: value, TTL: defaultTTL})
		}
	}
	return out
}

// desiredRoutes expands a DesiredDNSState into the vhost -> backend map the
// router should hold for this reconciler's managed subdomain.
func desiredRoutes(sub, domain string, state types.DesiredDNSState) map[string]string {
	out := make(map[string]string)
	for _, addr := range state.Addresses {
		for serverID, gamePort := range state.Servers {
			vhostSub := serverID + "." + sub
			if addr.Name != "" && addr.Name != "*" {
				vhostSub = serverID + "." + addr.Name + "." + sub
			}
			vhost := vhostSub + "." + domain
			out[vhost] = fmt.Sprintf("%s:%d", addr.Host, gamePort)
		}
	}
	return out
}

// recordDiff is the minimal change set to push to a DNS provider.
type recordDiff struct {
	Add    []types.DNSRecord
	Remove []types.DNSRecord
	Update []types.DNSRecord // desired replacement; pairs 1:1 with a same-key-family removal
}

func (d recordDiff) empty() bool { return len(d.Add) == 0 && len(d.Remove) == 0 && len(d.Update) == 0 }

// diffRecords compares desired against actual by the (sub, type, value, ttl)
// identity spec.md 4.5.3 specifies. There is no partial "update" concept at
// the record-identity level (any field change changes the key), so this
// reduces to a straight add/remove set; update is exercised by the provider
// layer only when a same-sub-and-type record's value changes and the caller
// chooses to treat it as a replacement rather than add+remove — callers here
// keep it simple and treat every difference as remove-then-add.
func diffRecords(desired, actual []types.DNSRecord) recordDiff {
	desiredSet := make(map[recordKey]types.DNSRecord, len(desired))
	for _, r := range desired {
		desiredSet[keyOf(r)] = r
	}
	actualSet := make(map[recordKey]types.DNSRecord, len(actual))
	for _, r := range actual {
		actualSet[keyOf(r)] = r
	}

	var diff recordDiff
	for k, r := range desiredSet {
		if _, ok := actualSet[k]; !ok {
			diff.Add = append(diff.Add, r)
		}
	}
	for k, r := range actualSet {
		if _, ok := desiredSet[k]; !ok {
			diff.Remove = append(diff.Remove, r)
		}
	}
	return diff
}

// routeDiff is the minimal change set to push to the L7 router.
type routeDiff struct {
	Add    map[string]string
	Remove []string
	Update map[string]string // vhost -> new backend
}

func (d routeDiff) empty() bool { return len(d.Add) == 0 && len(d.Remove) == 0 && len(d.Update) == 0 }

// diffRoutes compares desired routes against the managed subset of actual
// routes. A vhost present in both with a different backend is an "update".
func diffRoutes(desired map[string]string, actual []types.Route) routeDiff {
	actualMap := make(map[string]string, len(actual))
	for _, r := range actual {
		actualMap[r.Vhost] = r.Backend
	}

	diff := routeDiff{Add: make(map[string]string), Update: make(map[string]string)}
	for vhost, backend := range desired {
		existing, ok := actualMap[vhost]
		switch {
		case !ok:
			diff.Add[vhost] = backend
		case existing != backend:
			diff.Update[vhost] = backend
		}
	}
	for vhost := range actualMap {
		if _, ok := desired[vhost]; !ok {
			diff.Remove = append(diff.Remove, vhost)
		}
	}
	return diff
}
