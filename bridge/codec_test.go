package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lanebridge/lanes"
)

func TestProveMessagesRangeValidation(t *testing.T) {
	m := newTestModule(t, newFakeDispatch())
	for i := 0; i < 3; i++ {
		_, err := m.SendMessage(testLane, []byte("m"))
		require.NoError(t, err)
	}

	_, err := m.ProveMessages(testLane, 2, 1, false)
	require.Error(t, err)
	_, err = m.ProveMessages(testLane, 1, 4, false)
	require.Error(t, err)

	proof, err := m.ProveMessages(testLane, 1, 3, true)
	require.NoError(t, err)
	proved, err := DecodingVerifier{}.VerifyMessagesProof(proof)
	require.NoError(t, err)
	require.Len(t, proved.Messages, 3)
	require.NotNil(t, proved.LaneState)
	require.Equal(t, lanes.Nonce(3), proved.LaneState.LatestGeneratedNonce)
}

func TestDecodingVerifierRejectsInconsistentProofs(t *testing.T) {
	m := newTestModule(t, newFakeDispatch())
	_, err := m.SendMessage(testLane, []byte("m"))
	require.NoError(t, err)
	proof, err := m.ProveMessages(testLane, 1, 1, false)
	require.NoError(t, err)

	// declared range disagrees with the proof body
	tampered := *proof
	tampered.NoncesEnd = 2
	_, err = DecodingVerifier{}.VerifyMessagesProof(&tampered)
	require.Error(t, err)

	// declared lane disagrees with the proof body
	tampered = *proof
	tampered.LaneID = lanes.NewLaneID([]byte("other"), []byte("pair"))
	_, err = DecodingVerifier{}.VerifyMessagesProof(&tampered)
	require.Error(t, err)

	// garbage bytes
	tampered = *proof
	tampered.Proof = []byte{0xff, 0x00, 0x13}
	_, err = DecodingVerifier{}.VerifyMessagesProof(&tampered)
	require.Error(t, err)
}

func TestDeliveryProofRoundTrip(t *testing.T) {
	src := newTestModule(t, newFakeDispatch())
	dst := newTestModule(t, newFakeDispatch())
	_, err := src.SendMessage(testLane, []byte("m"))
	require.NoError(t, err)
	deliver(t, src, dst, "alice", 1, 1)

	proof, err := dst.ProveMessagesReceiving(testLane)
	require.NoError(t, err)
	data, err := DecodingVerifier{}.VerifyDeliveryProof(proof)
	require.NoError(t, err)
	require.Equal(t, lanes.Nonce(1), data.LastDeliveredNonce())
	require.Len(t, data.Relayers, 1)
	require.Equal(t, "alice", data.Relayers[0].Relayer)
}
