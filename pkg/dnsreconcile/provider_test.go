package dnsreconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthstack/mcfleet/pkg/types"
)

func TestFakeProvider_AddListRemove(t *testing.T) {
	p := NewFakeProvider("example.com")
	ctx := context.Background()

	require.NoError(t, p.AddRecords(ctx, []types.DNSRecord{
		{Sub: "*.mc", Type: types.RecordA, Value: "1.1.1.1", TTL: 300},
	}))

	recs, err := p.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)

	require.NoError(t, p.RemoveRecords(ctx, []string{recs[0].ID}))
	recs, err = p.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFakeProvider_DoesNotImplementUpdatingProvider(t *testing.T) {
	var p Provider = NewFakeProvider("example.com")
	_, ok := p.(UpdatingProvider)
	assert.False(t, ok, "FakeProvider must exercise the reconciler's remove+add fallback path")
}

func TestRecordIDRoundTrip(t *testing.T) {
	r := types.DNSRecord{Sub: "*.mc", Type: types.RecordA, Value: "1.1.1.1"}
	id := recordID(r)
	sub, typ, value, err := splitRecordID(id)
	require.NoError(t, err)
	assert.Equal(t, r.Sub, sub)
	assert.Equal(t, string(r.Type), typ)
	assert.Equal(t, r.Value, value)
}

func TestRFC2136Provider_BuildRR(t *testing.T) {
	p := NewRFC2136Provider(RFC2136Config{
		Domain: "example.com", Server: "127.0.0.1:53",
		TSIGName: "key.", TSIGKey: "c2VjcmV0",
	})

	rr, err := p.buildRR(types.DNSRecord{Sub: "*.mc", Type: types.RecordA, Value: "1.1.1.1", TTL: 300})
	require.NoError(t, err)
	assert.Equal(t, "*.mc.example.com.", rr.Header().Name)

	_, err = p.buildRR(types.DNSRecord{Sub: "*.mc", Type: "CNAME", Value: "x"})
	assert.Error(t, err)
}
