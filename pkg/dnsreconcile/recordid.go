package dnsreconcile

import (
	"fmt"
	"net"
	"strings"

	"github.com/hearthstack/mcfleet/pkg/types"
)

// recordKey returns the tuple a record is matched on: (sub, type, value,
// ttl). Two records with the same key are considered identical for diffing.
type recordKey struct {
	Sub   string
	Type  types.DNSRecordType
	Value string
	TTL   int
}

func keyOf(r types.DNSRecord) recordKey {
	return recordKey{Sub: r.Sub, Type: r.Type, Value: r.Value, TTL: r.TTL}
}

// recordID packs a record's identity into a provider-agnostic ID string for
// providers (like RFC2136) that have no native record ID of their own.
func recordID(r types.DNSRecord) string {
	return fmt.Sprintf("%s|%s|%s", r.Sub, r.Type, r.Value)
}

func splitRecordID(id string) (sub, typ, value string, err error) {
	parts := strings.SplitN(id, "|", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed record id %q", id)
	}
	return parts[0], parts[1], parts[2], nil
}

func ttlOrDefault(ttl int, fallback uint32) uint32 {
	if ttl > 0 {
		return uint32(ttl)
	}
	return fallback
}

func parseIPOrZero(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return net.IPv4zero
	}
	return ip
}
