package lanes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInboundLaneDataLastDeliveredNonce(t *testing.T) {
	data := NewInboundLaneData()
	require.Equal(t, Nonce(0), data.LastDeliveredNonce())

	data.LastConfirmedNonce = 10
	require.Equal(t, Nonce(10), data.LastDeliveredNonce())

	data.Relayers = []UnrewardedRelayer{
		{Relayer: "alice", Messages: DeliveredMessages{Begin: 11, End: 13}},
		{Relayer: "bob", Messages: DeliveredMessages{Begin: 14, End: 14}},
	}
	require.Equal(t, Nonce(14), data.LastDeliveredNonce())
	require.Equal(t, uint64(4), data.TotalUnrewardedMessages())
}

func TestOutboundLaneDataQueuedMessages(t *testing.T) {
	data := NewOutboundLaneData()
	begin, end := data.QueuedMessages()
	require.Equal(t, Nonce(1), begin)
	require.Equal(t, Nonce(0), end)
	require.Equal(t, uint64(0), data.QueuedMessagesLen())

	data.LatestGeneratedNonce = 5
	data.LatestReceivedNonce = 2
	begin, end = data.QueuedMessages()
	require.Equal(t, Nonce(3), begin)
	require.Equal(t, Nonce(5), end)
	require.Equal(t, uint64(3), data.QueuedMessagesLen())
}

func TestDeliveredMessages(t *testing.T) {
	d := NewDeliveredMessages(5)
	require.True(t, d.Contains(5))
	require.False(t, d.Contains(6))
	require.Equal(t, uint64(1), d.TotalMessages())

	d.NoteDispatchedMessage()
	require.True(t, d.Contains(6))
	require.Equal(t, uint64(2), d.TotalMessages())

	empty := DeliveredMessages{Begin: 4, End: 3}
	require.Equal(t, uint64(0), empty.TotalMessages())
}

func TestUnrewardedRelayersStateIsValid(t *testing.T) {
	data := InboundLaneData{
		State: LaneOpened,
		Relayers: []UnrewardedRelayer{
			{Relayer: "alice", Messages: DeliveredMessages{Begin: 1, End: 3}},
			{Relayer: "bob", Messages: DeliveredMessages{Begin: 4, End: 4}},
		},
	}

	state := UnrewardedRelayersStateFrom(&data)
	require.Equal(t, uint64(2), state.UnrewardedRelayerEntries)
	require.Equal(t, uint64(3), state.MessagesInOldestEntry)
	require.Equal(t, uint64(4), state.TotalMessages)
	require.Equal(t, Nonce(4), state.LastDeliveredNonce)
	require.True(t, state.IsValid(&data))

	state.TotalMessages = 5
	require.False(t, state.IsValid(&data))
}

func TestLaneDataBinaryRoundTrip(t *testing.T) {
	inbound := InboundLaneData{
		State: LaneClosed,
		Relayers: []UnrewardedRelayer{
			{Relayer: "alice", Messages: DeliveredMessages{Begin: 7, End: 9}},
		},
		LastConfirmedNonce: 6,
	}
	raw, err := inbound.MarshalBinary()
	require.NoError(t, err)
	var decodedIn InboundLaneData
	require.NoError(t, decodedIn.UnmarshalBinary(raw))
	require.Equal(t, inbound, decodedIn)

	outbound := OutboundLaneData{
		State:                LaneOpened,
		OldestUnprunedNonce:  3,
		LatestReceivedNonce:  5,
		LatestGeneratedNonce: 9,
	}
	raw, err = outbound.MarshalBinary()
	require.NoError(t, err)
	var decodedOut OutboundLaneData
	require.NoError(t, decodedOut.UnmarshalBinary(raw))
	require.Equal(t, outbound, decodedOut)
}
