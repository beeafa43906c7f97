package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"lanebridge/bridge"
	"lanebridge/lanes"
	"lanebridge/storage"
)

var testLane = lanes.NewLaneID([]byte("alpha"), []byte("beta"))

type passthroughDispatch struct{}

func (passthroughDispatch) IsActive(lanes.LaneID) bool { return true }

func (passthroughDispatch) Dispatch(lanes.LaneID, lanes.Nonce, []byte) error { return nil }

func newTestNode(t *testing.T) (*bridge.Module, *Client, *httptest.Server) {
	t.Helper()
	cfg := lanes.ChainConfig{MaxUnrewardedRelayerEntries: 8, MaxUnconfirmedMessages: 32}
	return newTestNodeWithConfig(t, cfg)
}

func newTestNodeWithConfig(t *testing.T, cfg lanes.ChainConfig) (*bridge.Module, *Client, *httptest.Server) {
	t.Helper()
	manager := lanes.NewManager(storage.NewMemDB(), cfg, passthroughDispatch{})
	module := bridge.NewModule(manager, bridge.DecodingVerifier{}, passthroughDispatch{})
	require.NoError(t, module.OpenLane(testLane))

	server := httptest.NewServer(NewServer(module, nil).Handler())
	t.Cleanup(server.Close)
	client := NewClient(server.URL, "test-relayer", server.Client())
	return module, client, server
}

func TestHealthz(t *testing.T) {
	_, client, server := newTestNode(t)
	require.NoError(t, client.Ping(context.Background()))

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLaneEndpointErrors(t *testing.T) {
	_, _, server := newTestNode(t)

	resp, err := http.Get(server.URL + "/v1/lanes/zzzz/outbound")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	unknown := lanes.NewLaneID([]byte("no"), []byte("lane"))
	resp, err = http.Get(server.URL + "/v1/lanes/" + unknown.String() + "/outbound")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClientRelayRoundTrip(t *testing.T) {
	ctx := context.Background()
	srcModule, srcClient, _ := newTestNode(t)
	_, dstClient, _ := newTestNode(t)

	for i := 0; i < 3; i++ {
		_, err := srcModule.SendMessage(testLane, []byte("payload"))
		require.NoError(t, err)
	}

	generated, err := srcClient.LatestGeneratedNonce(ctx, testLane)
	require.NoError(t, err)
	require.Equal(t, lanes.Nonce(3), generated)

	proof, err := srcClient.ProveMessages(ctx, testLane, 1, 3, false)
	require.NoError(t, err)
	require.NoError(t, dstClient.SubmitMessagesProof(ctx, proof))

	delivered, err := dstClient.LatestReceivedNonce(ctx, testLane)
	require.NoError(t, err)
	require.Equal(t, lanes.Nonce(3), delivered)

	relayersState, err := dstClient.UnrewardedRelayersState(ctx, testLane)
	require.NoError(t, err)
	require.Equal(t, uint64(1), relayersState.UnrewardedRelayerEntries)
	require.Equal(t, lanes.Nonce(3), relayersState.LastDeliveredNonce)

	receiving, err := dstClient.ProveMessagesReceiving(ctx, testLane)
	require.NoError(t, err)
	require.NoError(t, srcClient.SubmitMessagesReceivingProof(ctx, receiving, relayersState))

	confirmed, err := srcClient.LatestConfirmedReceivedNonce(ctx, testLane)
	require.NoError(t, err)
	require.Equal(t, lanes.Nonce(3), confirmed)
}

func TestStaleSubmissionMapsToConflict(t *testing.T) {
	ctx := context.Background()
	srcModule, srcClient, _ := newTestNode(t)
	_, dstClient, _ := newTestNode(t)

	_, err := srcModule.SendMessage(testLane, []byte("payload"))
	require.NoError(t, err)

	proof, err := srcClient.ProveMessages(ctx, testLane, 1, 1, false)
	require.NoError(t, err)
	require.NoError(t, dstClient.SubmitMessagesProof(ctx, proof))

	err = dstClient.SubmitMessagesProof(ctx, proof)
	require.ErrorIs(t, err, bridge.ErrStaleSubmission)
}

func TestSubmitProofReportsReceptionOutcomes(t *testing.T) {
	ctx := context.Background()
	srcModule, srcClient, _ := newTestNode(t)
	dstModule, dstClient, _ := newTestNode(t)

	for i := 0; i < 3; i++ {
		_, err := srcModule.SendMessage(testLane, []byte("payload"))
		require.NoError(t, err)
	}
	first, err := srcClient.ProveMessages(ctx, testLane, 1, 2, false)
	require.NoError(t, err)
	require.NoError(t, dstClient.SubmitMessagesProof(ctx, first))

	// overlap: nonce 2 is already delivered, nonce 3 is new
	overlap, err := srcClient.ProveMessages(ctx, testLane, 2, 3, false)
	require.NoError(t, err)
	require.NoError(t, dstClient.SubmitMessagesProof(ctx, overlap))

	inbound, err := dstModule.InboundLaneData(testLane)
	require.NoError(t, err)
	require.Equal(t, lanes.Nonce(3), inbound.LastDeliveredNonce())
}

func TestSubmitProofAllMessagesRejectedIsAnError(t *testing.T) {
	ctx := context.Background()
	srcModule, srcClient, _ := newTestNode(t)
	cfg := lanes.ChainConfig{MaxUnrewardedRelayerEntries: 1, MaxUnconfirmedMessages: 32}
	dstModule, dstClient, dstServer := newTestNodeWithConfig(t, cfg)

	for i := 0; i < 2; i++ {
		_, err := srcModule.SendMessage(testLane, []byte("payload"))
		require.NoError(t, err)
	}
	first, err := srcClient.ProveMessages(ctx, testLane, 1, 1, false)
	require.NoError(t, err)
	require.NoError(t, dstClient.SubmitMessagesProof(ctx, first))

	// the single relayer-entry slot is taken, so a second relayer's
	// submission is accepted by the node but every bundled message is
	// rejected; the client must not report that as a delivery
	other := NewClient(dstServer.URL, "other-relayer", dstServer.Client())
	second, err := srcClient.ProveMessages(ctx, testLane, 2, 2, false)
	require.NoError(t, err)
	err = other.SubmitMessagesProof(ctx, second)
	require.Error(t, err)
	require.NotErrorIs(t, err, bridge.ErrStaleSubmission)
	require.Contains(t, err.Error(), "no messages dispatched")

	inbound, err := dstModule.InboundLaneData(testLane)
	require.NoError(t, err)
	require.Equal(t, lanes.Nonce(1), inbound.LastDeliveredNonce())
}
