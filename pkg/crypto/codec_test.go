package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldCodecRoundTrip(t *testing.T) {
	codec, err := NewFieldCodec("unit-test-key")
	require.NoError(t, err)

	sealed, err := codec.Encrypt("Via Stazione 12")
	require.NoError(t, err)
	assert.NotEqual(t, "Via Stazione 12", sealed)

	plain, err := codec.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "Via Stazione 12", plain)
}

func TestFieldCodecEmptyValuesPassThrough(t *testing.T) {
	codec, err := NewFieldCodec("unit-test-key")
	require.NoError(t, err)

	sealed, err := codec.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := codec.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestFieldCodecRejectsTamperedValue(t *testing.T) {
	codec, err := NewFieldCodec("unit-test-key")
	require.NoError(t, err)

	_, err = codec.Decrypt("bm90LXJlYWwtY2lwaGVydGV4dA==")
	require.Error(t, err)
}

func TestFieldCodecRequiresKey(t *testing.T) {
	_, err := NewFieldCodec("")
	require.Error(t, err)
}
