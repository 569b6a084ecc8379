package dnsreconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/miekg/dns"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// Provider is the narrow capability set the reconciler needs from a DNS
// backend. A provider that can combine a remove+add into one atomic call
// additionally implements UpdatingProvider; the reconciler falls back to
// issuing the two calls itself when it doesn't.
type Provider interface {
	Domain() string
	ListRecords(ctx context.Context) ([]types.DNSRecord, error)
	AddRecords(ctx context.Context, records []types.DNSRecord) error
	RemoveRecords(ctx context.Context, ids []string) error
}

// UpdatingProvider is a Provider that can replace a record in a single
// call instead of a separate remove and add.
type UpdatingProvider interface {
	Provider
	UpdateRecords(ctx context.Context, records []types.DNSRecord) error
}

// FakeProvider is an in-memory Provider for tests. It deliberately does not
// implement UpdatingProvider, exercising the reconciler's remove+add
// fallback path.
type FakeProvider struct {
	domain string

	mu      sync.Mutex
	records map[string]types.DNSRecord
}

// NewFakeProvider creates an empty fake provider for domain.
func NewFakeProvider(domain string) *FakeProvider {
	return &FakeProvider{domain: domain, records: make(map[string]types.DNSRecord)}
}

func (p *FakeProvider) Domain() string { return p.domain }

func (p *FakeProvider) ListRecords(ctx context.Context) ([]types.DNSRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.DNSRecord, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r)
	}
	return out, nil
}

func (p *FakeProvider) AddRecords(ctx context.Context, records []types.DNSRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		p.records[r.ID] = r
	}
	return nil
}

func (p *FakeProvider) RemoveRecords(ctx context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.records, id)
	}
	return nil
}

// RFC2136Provider manages records on an authoritative nameserver via
// RFC2136 dynamic updates, authenticated with a TSIG key.
type RFC2136Provider struct {
	domain    string
	server    string
	tsigName  string
	tsigKey   string
	tsigAlgo  string
	ttl       uint32
	client    *dns.Client
}

// RFC2136Config configures a dynamic-update DNS provider.
type RFC2136Config struct {
	Domain   string
	Server   string // "host:port", usually port 53
	TSIGName string
	TSIGKey  string // base64 secret
	TSIGAlgo string // e.g. dns.HmacSHA256
	TTL      uint32
}

// NewRFC2136Provider builds a provider issuing authenticated UPDATE
// messages against cfg.Server.
func NewRFC2136Provider(cfg RFC2136Config) *RFC2136Provider {
	algo := cfg.TSIGAlgo
	if algo == "" {
		algo = dns.HmacSHA256
	}
	return &RFC2136Provider{
		domain:   cfg.Domain,
		server:   cfg.Server,
		tsigName: dns.Fqdn(cfg.TSIGName),
		tsigKey:  cfg.TSIGKey,
		tsigAlgo: algo,
		ttl:      cfg.TTL,
		client:   &dns.Client{Net: "tcp", TsigSecret: map[string]string{dns.Fqdn(cfg.TSIGName): cfg.TSIGKey}},
	}
}

func (p *RFC2136Provider) Domain() string { return p.domain }

// ListRecords is unsupported over RFC2136 (no zone-transfer capability is
// configured here), so it always reports no records.
// Returning an empty slice keeps the diff conservative: it will always
// attempt to (re-)add desired records, which is a safe no-op for records
// that already exist with identical data.
func (p *RFC2136Provider) ListRecords(ctx context.Context) ([]types.DNSRecord, error) {
	return nil, nil
}

func (p *RFC2136Provider) AddRecords(ctx context.Context, records []types.DNSRecord) error {
	if len(records) == 0 {
		return nil
	}
	m := p.updateMsg()
	for _, r := range records {
		rr, err := p.buildRR(r)
		if err != nil {
			return err
		}
		m.Insert([]dns.RR{rr})
	}
	return p.exchange(m)
}

func (p *RFC2136Provider) RemoveRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m := p.updateMsg()
	for _, id := range ids {
		rr, err := rrFromRecordID(id)
		if err != nil {
			return err
		}
		m.Remove([]dns.RR{rr})
	}
	return p.exchange(m)
}

// UpdateRecords issues the remove and the add inside one UPDATE message,
// which RFC2136 servers apply atomically.
func (p *RFC2136Provider) UpdateRecords(ctx context.Context, records []types.DNSRecord) error {
	m := p.updateMsg()
	for _, r := range records {
		if r.ID != "" {
			if rr, err := rrFromRecordID(r.ID); err == nil {
				m.Remove([]dns.RR{rr})
			}
		}
		rr, err := p.buildRR(r)
		if err != nil {
			return err
		}
		m.Insert([]dns.RR{rr})
	}
	return p.exchange(m)
}

func (p *RFC2136Provider) updateMsg() *dns.Msg {
	m := new(dns.Msg)
	m.SetUpdate(dns.Fqdn(p.domain))
	return m
}

func (p *RFC2136Provider) exchange(m *dns.Msg) error {
	m.SetTsig(p.tsigName, p.tsigAlgo, 300, dns.Fqdn(""))
	resp, _, err := p.client.Exchange(m, p.server)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "rfc2136 dns update", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return errs.Unavailablef("rfc2136 dns update rejected: %s", dns.RcodeToString[resp.Rcode])
	}
	return nil
}

func (p *RFC2136Provider) buildRR(r types.DNSRecord) (dns.RR, error) {
	fqdn := dns.Fqdn(r.Sub) + p.domain + "."
	switch r.Type {
	case types.RecordA:
		rr := &dns.A{Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttlOrDefault(r.TTL, p.ttl)}}
		rr.A = parseIPOrZero(r.Value)
		return rr, nil
	case types.RecordSRV:
		rr, err := dns.NewRR(fmt.Sprintf("%s %d IN SRV %s", fqdn, ttlOrDefault(r.TTL, p.ttl), r.Value))
		if err != nil {
			return nil, fmt.Errorf("build SRV record: %w", err)
		}
		return rr, nil
	default:
		return nil, fmt.Errorf("unsupported record type %q", r.Type)
	}
}

// rrFromRecordID reconstructs the minimal RR needed for a DNS UPDATE
// delete-by-rrset-data: this provider encodes a record's ID as
// "<sub>|<type>|<value>" so removal never depends on server-side state.
func rrFromRecordID(id string) (dns.RR, error) {
	sub, typ, value, err := splitRecordID(id)
	if err != nil {
		return nil, err
	}
	switch typ {
	case string(types.RecordA):
		rr := &dns.A{Hdr: dns.RR_Header{Name: dns.Fqdn(sub), Rrtype: dns.TypeA, Class: dns.ClassINET}}
		rr.A = parseIPOrZero(value)
		return rr, nil
	case string(types.RecordSRV):
		return dns.NewRR(fmt.Sprintf("%s 0 IN SRV %s", dns.Fqdn(sub), value))
	default:
		return nil, fmt.Errorf("unsupported record type %q", typ)
	}
}
