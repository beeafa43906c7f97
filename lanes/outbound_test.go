package lanes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mockOutboundStorage struct {
	id       LaneID
	data     OutboundLaneData
	messages map[Nonce][]byte
}

func newMockOutboundStorage() *mockOutboundStorage {
	return &mockOutboundStorage{
		id:       NewLaneID([]byte("this"), []byte("bridged")),
		data:     NewOutboundLaneData(),
		messages: make(map[Nonce][]byte),
	}
}

func (s *mockOutboundStorage) ID() LaneID             { return s.id }
func (s *mockOutboundStorage) Data() OutboundLaneData { return s.data }

func (s *mockOutboundStorage) SetData(data OutboundLaneData) error {
	s.data = data
	return nil
}

func (s *mockOutboundStorage) SaveMessage(nonce Nonce, payload []byte) error {
	s.messages[nonce] = payload
	return nil
}

func (s *mockOutboundStorage) Message(nonce Nonce) ([]byte, bool, error) {
	payload, ok := s.messages[nonce]
	return payload, ok, nil
}

func (s *mockOutboundStorage) RemoveMessage(nonce Nonce) error {
	delete(s.messages, nonce)
	return nil
}

func singleRelayer(relayer string, begin, end Nonce) []UnrewardedRelayer {
	return []UnrewardedRelayer{{Relayer: relayer, Messages: DeliveredMessages{Begin: begin, End: end}}}
}

func TestSendMessageAssignsNonces(t *testing.T) {
	st := newMockOutboundStorage()
	lane := NewOutboundLane(st)

	for want := Nonce(1); want <= 3; want++ {
		nonce, err := lane.SendMessage([]byte("payload"))
		require.NoError(t, err)
		require.Equal(t, want, nonce)
	}
	require.Equal(t, Nonce(3), lane.Data().LatestGeneratedNonce)

	payload, ok, err := lane.Message(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), payload)
}

func TestConfirmDeliveryMonotonic(t *testing.T) {
	st := newMockOutboundStorage()
	lane := NewOutboundLane(st)
	for i := 0; i < 10; i++ {
		_, err := lane.SendMessage([]byte("m"))
		require.NoError(t, err)
	}

	confirmed, err := lane.ConfirmDelivery(10, 6, singleRelayer("alice", 1, 6))
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	require.Equal(t, DeliveredMessages{Begin: 1, End: 6}, *confirmed)
	require.Equal(t, Nonce(6), lane.Data().LatestReceivedNonce)

	// stale and duplicate confirmations are no-ops
	confirmed, err = lane.ConfirmDelivery(10, 6, singleRelayer("alice", 1, 6))
	require.NoError(t, err)
	require.Nil(t, confirmed)
	confirmed, err = lane.ConfirmDelivery(10, 3, singleRelayer("alice", 1, 3))
	require.NoError(t, err)
	require.Nil(t, confirmed)
	require.Equal(t, Nonce(6), lane.Data().LatestReceivedNonce)

	confirmed, err = lane.ConfirmDelivery(10, 8, singleRelayer("alice", 7, 8))
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	require.Equal(t, DeliveredMessages{Begin: 7, End: 8}, *confirmed)
}

func TestConfirmDeliveryRejectsFutureMessages(t *testing.T) {
	st := newMockOutboundStorage()
	lane := NewOutboundLane(st)
	for i := 0; i < 3; i++ {
		_, err := lane.SendMessage([]byte("m"))
		require.NoError(t, err)
	}

	_, err := lane.ConfirmDelivery(10, 5, singleRelayer("alice", 1, 5))
	require.ErrorIs(t, err, ErrFailedToConfirmFutureMessages)
	require.Equal(t, Nonce(0), lane.Data().LatestReceivedNonce)
}

func TestConfirmDeliveryRejectsOversizedConfirmation(t *testing.T) {
	st := newMockOutboundStorage()
	lane := NewOutboundLane(st)
	for i := 0; i < 5; i++ {
		_, err := lane.SendMessage([]byte("m"))
		require.NoError(t, err)
	}

	_, err := lane.ConfirmDelivery(2, 5, singleRelayer("alice", 1, 5))
	require.ErrorIs(t, err, ErrTryingToConfirmMoreMessagesThanExpected)
}

func TestConfirmDeliveryValidatesRelayerEntries(t *testing.T) {
	st := newMockOutboundStorage()
	lane := NewOutboundLane(st)
	for i := 0; i < 6; i++ {
		_, err := lane.SendMessage([]byte("m"))
		require.NoError(t, err)
	}

	_, err := lane.ConfirmDelivery(10, 4, []UnrewardedRelayer{
		{Relayer: "alice", Messages: DeliveredMessages{Begin: 2, End: 1}},
	})
	require.ErrorIs(t, err, ErrEmptyUnrewardedRelayerEntry)

	_, err = lane.ConfirmDelivery(10, 4, []UnrewardedRelayer{
		{Relayer: "alice", Messages: DeliveredMessages{Begin: 1, End: 2}},
		{Relayer: "bob", Messages: DeliveredMessages{Begin: 4, End: 4}},
	})
	require.ErrorIs(t, err, ErrNonConsecutiveUnrewardedRelayerEntries)

	_, err = lane.ConfirmDelivery(10, 4, []UnrewardedRelayer{
		{Relayer: "alice", Messages: DeliveredMessages{Begin: 1, End: 5}},
	})
	require.ErrorIs(t, err, ErrFailedToConfirmFutureMessages)
}

func TestPruneMessagesIsBounded(t *testing.T) {
	st := newMockOutboundStorage()
	lane := NewOutboundLane(st)
	for i := 0; i < 8; i++ {
		_, err := lane.SendMessage([]byte("m"))
		require.NoError(t, err)
	}
	_, err := lane.ConfirmDelivery(10, 6, singleRelayer("alice", 1, 6))
	require.NoError(t, err)

	pruned, err := lane.PruneMessages(4)
	require.NoError(t, err)
	require.Equal(t, uint64(4), pruned)
	require.Equal(t, Nonce(5), lane.Data().OldestUnprunedNonce)

	// only confirmed messages are pruned
	pruned, err = lane.PruneMessages(10)
	require.NoError(t, err)
	require.Equal(t, uint64(2), pruned)
	require.Equal(t, Nonce(7), lane.Data().OldestUnprunedNonce)

	_, ok, err := lane.Message(6)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = lane.Message(7)
	require.NoError(t, err)
	require.True(t, ok)
}
