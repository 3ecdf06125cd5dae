package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeID_RoundTrip(t *testing.T) {
	id := NodeIDFromPublicKey([]byte("public-key-bytes"))

	s := id.String()
	require.NotEmpty(t, s)
	assert.Equal(t, "Qm", s[:2], "sha2-256 multihash 的 Base58 前缀")

	parsed, err := ParseNodeID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestNodeID_ShortString(t *testing.T) {
	id := NodeIDFromPublicKey([]byte("k"))
	assert.Len(t, id.ShortString(), 8)
	assert.Contains(t, id.String(), id.ShortString())
	assert.Equal(t, "", EmptyNodeID.ShortString())
}

func TestParseNodeID_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"not base58", "0OIl"},
		{"not multihash", "3mJr7AoUXx2Wqd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNodeID(tt.in)
			assert.ErrorIs(t, err, ErrInvalidNodeID)
		})
	}
}

func TestNodeID_JSON(t *testing.T) {
	id := NodeIDFromPublicKey([]byte("json"))

	data, err := json.Marshal(map[string]NodeID{"peer": id})
	require.NoError(t, err)

	var out map[string]NodeID
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out["peer"])
}
