package bridge

import "lanebridge/lanes"

// Message is a single bundled message extracted from a proved nonce range.
type Message struct {
	Nonce   lanes.Nonce
	Payload []byte
}

// MessagesProof carries a range of outbound messages of the bridged chain
// plus the finality context required to verify them. The proof body is opaque
// to this module: only the ProofVerifier can interpret it.
type MessagesProof struct {
	LaneID      lanes.LaneID
	NoncesBegin lanes.Nonce
	NoncesEnd   lanes.Nonce
	Proof       []byte
}

// DeliveryProof carries the bridged chain's inbound lane state, proving which
// of our outbound messages it has delivered.
type DeliveryProof struct {
	LaneID lanes.LaneID
	Proof  []byte
}

// ProvedMessages is the verified content of a MessagesProof.
type ProvedMessages struct {
	LaneID lanes.LaneID
	// LaneState optionally carries the bridged chain's outbound lane state
	// so the inbound lane can drop confirmed relayer entries.
	LaneState *lanes.OutboundLaneData
	Messages  []Message
}

// ProofVerifier checks finality/storage proofs against the bridged chain's
// header chain. It is the trust root of the whole protocol: lane logic never
// re-verifies what the verifier vouches for, so a compromised verifier can
// confirm forged delivery ranges and cause undelivered messages to be pruned.
// That trust boundary is inherited from the protocol design.
type ProofVerifier interface {
	VerifyMessagesProof(proof *MessagesProof) (*ProvedMessages, error)
	VerifyDeliveryProof(proof *DeliveryProof) (*lanes.InboundLaneData, error)
}

// DeliveryConfirmationPayments settles relayer rewards once deliveries are
// confirmed. Implementations decide how rewards are funded; the module only
// reports who delivered what.
type DeliveryConfirmationPayments interface {
	// PayReward pays for the confirmed range and returns the number of
	// relayer entries actually rewarded.
	PayReward(lane lanes.LaneID, relayers []lanes.UnrewardedRelayer, confirmationRelayer string, received lanes.DeliveredMessages) uint64
}

// NoopPayments discards reward bookkeeping. Useful for chains that settle
// relayer rewards elsewhere.
type NoopPayments struct{}

// PayReward implements DeliveryConfirmationPayments.
func (NoopPayments) PayReward(_ lanes.LaneID, relayers []lanes.UnrewardedRelayer, _ string, _ lanes.DeliveredMessages) uint64 {
	return uint64(len(relayers))
}
