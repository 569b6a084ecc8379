package compose

import (
	"bufio"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarInt_RoundTrip(t *testing.T) {
	cases := []int{0, 1, 127, 128, 255, 25565, 2097151, -1}
	for _, c := range cases {
		b := &varIntBuffer{}
		writeVarInt(b, c)
		got, err := readVarInt(bufio.NewReader(bytes.NewReader(b.buf)))
		require.NoError(t, err)
		assert.Equal(t, int32(c), got)
	}
}

func TestProbeTCP_RefusedConnection(t *testing.T) {
	// Port 1 is a privileged, almost-certainly-unbound port in test sandboxes.
	assert.False(t, probeTCP(context.Background(), 1))
}
