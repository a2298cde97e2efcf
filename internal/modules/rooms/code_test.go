package rooms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/internal/modules/rooms"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := rooms.GenerateCode()
		require.NoError(t, err)
		assert.True(t, rooms.ValidCode(code), "generated code %q has wrong shape", code)
		seen[code] = true
	}
	// 36^6 codes: 200 draws colliding would point at a broken generator.
	assert.Greater(t, len(seen), 190)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB12CD", rooms.NormalizeCode("  ab12cd "))
	assert.Equal(t, "XYZ999", rooms.NormalizeCode("xyz999"))
}

func TestValidCode(t *testing.T) {
	assert.True(t, rooms.ValidCode("ABC123"))
	assert.True(t, rooms.ValidCode("000000"))

	assert.False(t, rooms.ValidCode("abc123"), "lowercase must be normalized first")
	assert.False(t, rooms.ValidCode("ABC12"))
	assert.False(t, rooms.ValidCode("ABC1234"))
	assert.False(t, rooms.ValidCode("ABC 12"))
	assert.False(t, rooms.ValidCode(""))
}
