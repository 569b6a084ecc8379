package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"vanilla":       "vanilla",
		"world/backup":  "world_backup",
		"a:b*c?d":       "a_b_c_d",
		"":               "unknown",
		"...":            "unknown",
		"has space here": "has_space_here",
	}
	for in, want := range cases {
		assert.Equalf(t, want, sanitize(in), "input %q", in)
	}
}

func TestArchiveFilename(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := archiveFilename("vanilla", "world", now)
	assert.Equal(t, "vanilla_world_1700000000.7z", got)
}

func TestParsePercent(t *testing.T) {
	pct, ok := parsePercent(" 45% 3 + data/world")
	assert.True(t, ok)
	assert.Equal(t, 45, pct)

	_, ok = parsePercent("Compressing files...")
	assert.False(t, ok)
}
