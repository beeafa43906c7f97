package relay

import (
	"context"
	"errors"

	"lanebridge/bridge"
	"lanebridge/lanes"
)

// SourceClient is the relay's view of the chain that generates the messages.
// It serves reads for the delivery race and accepts the confirmation race's
// submissions.
type SourceClient interface {
	// Ping checks connectivity; loops call it before starting and after
	// repeated failures.
	Ping(ctx context.Context) error
	// LatestGeneratedNonce returns the newest nonce queued on the outbound
	// lane.
	LatestGeneratedNonce(ctx context.Context, lane lanes.LaneID) (lanes.Nonce, error)
	// LatestConfirmedReceivedNonce returns the newest delivery the source
	// chain has had confirmed back to it.
	LatestConfirmedReceivedNonce(ctx context.Context, lane lanes.LaneID) (lanes.Nonce, error)
	// ProveMessages builds a messages proof for the nonce range, optionally
	// bundling the outbound lane state.
	ProveMessages(ctx context.Context, lane lanes.LaneID, begin, end lanes.Nonce, includeState bool) (*bridge.MessagesProof, error)
	// SubmitMessagesReceivingProof submits a delivery confirmation.
	SubmitMessagesReceivingProof(ctx context.Context, proof *bridge.DeliveryProof, relayersState lanes.UnrewardedRelayersState) error
}

// TargetClient is the relay's view of the chain that receives the messages.
type TargetClient interface {
	Ping(ctx context.Context) error
	// LatestReceivedNonce returns the newest nonce delivered to the inbound
	// lane.
	LatestReceivedNonce(ctx context.Context, lane lanes.LaneID) (lanes.Nonce, error)
	// UnrewardedRelayersState summarises the inbound lane's pending relayer
	// entries; it accompanies confirmation submissions.
	UnrewardedRelayersState(ctx context.Context, lane lanes.LaneID) (lanes.UnrewardedRelayersState, error)
	// ProveMessagesReceiving builds a delivery proof from the inbound lane
	// state.
	ProveMessagesReceiving(ctx context.Context, lane lanes.LaneID) (*bridge.DeliveryProof, error)
	// SubmitMessagesProof submits a messages proof for dispatch.
	SubmitMessagesProof(ctx context.Context, proof *bridge.MessagesProof) error
}

// IsStale reports whether a submission failed only because another relayer got
// there first. Loops treat such failures as benign and move on.
func IsStale(err error) bool {
	return errors.Is(err, bridge.ErrStaleSubmission)
}
