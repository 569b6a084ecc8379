package dnsreconcile

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/log"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// ServerLister is the slice of the container driver the reconciler needs:
// enumerate fleet members and read back a member's exposed game port.
// *compose.Driver satisfies this.
type ServerLister interface {
	List() ([]string, error)
	Get(serverID string) (*types.ServerInstance, error)
}

// assembleDesired builds the desired DNS/routing state: fleet members and
// their game ports from servers, and configured addresses resolved to a
// concrete host/port (static, or via nm for natmap entries). A natmap
// resolution failure drops only that address, per spec.md 4.5.1 — it never
// fails the whole assembly.
func assembleDesired(ctx context.Context, servers ServerLister, addrSpecs []types.AddressSpec, nm NATMapClient, limiter *rate.Limiter) (types.DesiredDNSState, error) {
	ids, err := servers.List()
	if err != nil {
		return types.DesiredDNSState{}, fmt.Errorf("list fleet servers: %w", err)
	}

	desired := types.DesiredDNSState{
		Addresses: make(map[string]types.ResolvedAddress, len(addrSpecs)),
		Servers:   make(map[string]int, len(ids)),
	}

	for _, id := range ids {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return types.DesiredDNSState{}, fmt.Errorf("rate limit wait: %w", err)
			}
		}
		inst, err := servers.Get(id)
		if err != nil {
			log.WithComponent("dnsreconcile").Warn().Str("server_id", id).Err(err).Msg("dropping server from desired state: get failed")
			continue
		}
		desired.Servers[id] = inst.GamePort
	}

	var mappings map[string]NATMapping
	var mapErr error
	needsMap := false
	for _, spec := range addrSpecs {
		if spec.Kind == types.AddressNATMap {
			needsMap = true
			break
		}
	}
	if needsMap {
		if nm == nil {
			mapErr = fmt.Errorf("no NAT-map client configured")
		} else {
			mappings, mapErr = nm.Mappings(ctx)
		}
	}

	for _, spec := range addrSpecs {
		switch spec.Kind {
		case types.AddressManual:
			desired.Addresses[spec.Name] = types.ResolvedAddress{Name: spec.Name, Host: spec.Value, Port: spec.Port}
		case types.AddressNATMap:
			if mapErr != nil {
				log.WithComponent("dnsreconcile").Warn().Str("address", spec.Name).Err(mapErr).Msg("dropping address from desired state: natmap client error")
				continue
			}
			m, ok := mappings[natMapKey(spec.InternalPort)]
			if !ok {
				log.WithComponent("dnsreconcile").Warn().Str("address", spec.Name).Int("internal_port", spec.InternalPort).Msg("dropping address from desired state: no natmap entry")
				continue
			}
			desired.Addresses[spec.Name] = types.ResolvedAddress{Name: spec.Name, Host: m.IP, Port: m.Port}
		default:
			return types.DesiredDNSState{}, fmt.Errorf("unknown address kind %q", spec.Kind)
		}
	}

	return desired, nil
}

// assembleActual reads back the provider's and router's current state and
// filters both down to the records/routes this reconciler manages.
func assembleActual(ctx context.Context, provider Provider, router Router, sub, domain string) (types.ActualDNSState, error) {
	records, err := provider.ListRecords(ctx)
	if err != nil {
		return types.ActualDNSState{}, errs.Wrap(errs.Unavailable, "list dns records", err)
	}

	var managed []types.DNSRecord
	for _, r := range records {
		if isManagedSub(r.Sub, sub) {
			managed = append(managed, r)
		}
	}

	var routes []types.Route
	if router != nil {
		all, err := router.Routes(ctx)
		if err != nil {
			return types.ActualDNSState{}, errs.Wrap(errs.Unavailable, "list routes", err)
		}
		suffix := "." + sub + "." + domain
		for vhost, backend := range all {
			if strings.HasSuffix(vhost, suffix) {
				routes = append(routes, types.Route{Vhost: vhost, Backend: backend})
			}
		}
	}

	return types.ActualDNSState{Records: managed, Routes: routes}, nil
}

// isManagedSub reports whether a record's subdomain falls within this
// reconciler's scope, per spec.md 4.5.2: the bare managed subdomain, its
// wildcard, a named-address wildcard, or a _minecraft._tcp. SRV name ending
// in it.
func isManagedSub(recordSub, managedSub string) bool {
	if recordSub == managedSub || recordSub == "*."+managedSub {
		return true
	}
	if strings.HasPrefix(recordSub, "*.") && strings.HasSuffix(recordSub, "."+managedSub) {
		return true
	}
	if strings.HasPrefix(recordSub, "_minecraft._tcp.") && strings.HasSuffix(recordSub, managedSub) {
		return true
	}
	return false
}
