package lanes

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

func TestNewLaneIDIsOrderIndependent(t *testing.T) {
	a := []byte("chain-a")
	b := []byte("chain-b")

	require.Equal(t, NewLaneID(a, b), NewLaneID(b, a))
	require.NotEqual(t, NewLaneID(a, b), NewLaneID(a, []byte("chain-c")))
	require.NotEqual(t, NewLaneID(a, b), NewLaneID(b, []byte("chain-c")))
}

func TestNewLaneIDDistinctPairsDiffer(t *testing.T) {
	// ambiguous concatenations must not collide thanks to the separator
	id1 := NewLaneID([]byte("ab"), []byte("c"))
	id2 := NewLaneID([]byte("a"), []byte("bc"))
	require.NotEqual(t, id1, id2)
}

func TestTryNewLegacyLaneIDUnsupported(t *testing.T) {
	_, err := TryNewLegacyLaneID([]byte("a"), []byte("b"))
	require.ErrorIs(t, err, ErrUnsupportedLaneID)
}

func TestDecodeLaneIDVariants(t *testing.T) {
	legacy := LegacyLaneID([4]byte{0, 0, 0, 1})
	require.True(t, legacy.IsLegacy())
	require.Len(t, legacy.Bytes(), 4)

	derived := NewLaneID([]byte("a"), []byte("b"))
	require.False(t, derived.IsLegacy())
	require.Len(t, derived.Bytes(), 32)

	for _, id := range []LaneID{legacy, derived} {
		decoded, err := DecodeLaneID(id.Bytes())
		require.NoError(t, err)
		require.Equal(t, id, decoded)

		parsed, err := ParseLaneID(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	}

	_, err := DecodeLaneID(make([]byte, 7))
	require.ErrorIs(t, err, ErrInvalidLaneID)
}

func TestLaneIDOrdering(t *testing.T) {
	legacy := LegacyLaneID([4]byte{0xFF, 0xFF, 0xFF, 0xFF})
	derived := NewLaneID([]byte("a"), []byte("b"))

	require.Equal(t, 0, derived.Compare(derived))
	// legacy ids sort before derived ids regardless of raw bytes
	require.Equal(t, -1, legacy.Compare(derived))
	require.Equal(t, 1, derived.Compare(legacy))

	other := NewLaneID([]byte("a"), []byte("c"))
	require.Equal(t, -derived.Compare(other), other.Compare(derived))
}

func TestLaneIDRLPRoundTrip(t *testing.T) {
	for _, id := range []LaneID{
		LegacyLaneID([4]byte{1, 2, 3, 4}),
		NewLaneID([]byte("a"), []byte("b")),
	} {
		encoded, err := rlp.EncodeToBytes(id)
		require.NoError(t, err)
		var decoded LaneID
		require.NoError(t, rlp.DecodeBytes(encoded, &decoded))
		require.Equal(t, id, decoded)
	}
}

func TestLaneStateIsActive(t *testing.T) {
	require.True(t, LaneOpened.IsActive())
	require.False(t, LaneClosed.IsActive())
}
