package lanes

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// Nonce is a per-lane, per-direction strictly increasing message sequence
// number. Nonce zero is never assigned to a message.
type Nonce uint64

// MessageKey identifies a queued message within the outbound message store.
type MessageKey struct {
	LaneID LaneID
	Nonce  Nonce
}

// DeliveredMessages is an inclusive range of nonces delivered by a single
// relayer. An empty range is encoded as End < Begin.
type DeliveredMessages struct {
	Begin Nonce
	End   Nonce
}

// NewDeliveredMessages creates a single-message range.
func NewDeliveredMessages(nonce Nonce) DeliveredMessages {
	return DeliveredMessages{Begin: nonce, End: nonce}
}

// NoteDispatchedMessage extends the range by the immediately following nonce.
func (d *DeliveredMessages) NoteDispatchedMessage() {
	d.End++
}

// Contains reports whether the nonce falls inside the range.
func (d DeliveredMessages) Contains(nonce Nonce) bool {
	return d.Begin <= nonce && nonce <= d.End
}

// TotalMessages returns the number of nonces in the range.
func (d DeliveredMessages) TotalMessages() uint64 {
	if d.End < d.Begin {
		return 0
	}
	return uint64(d.End-d.Begin) + 1
}

// UnrewardedRelayer records that a relayer delivered a contiguous nonce range
// and has not yet been paid for it. Entries live in InboundLaneData until a
// delivery-confirmation proof clears them.
type UnrewardedRelayer struct {
	Relayer  string
	Messages DeliveredMessages
}

// InboundLaneData is the receiver-side lane record.
//
// Relayers entries are nonce-contiguous and strictly increasing; each entry
// holds one relayer's contiguous delivered range pending reward confirmation.
// The entry count is bounded by the chain's MaxUnrewardedRelayerEntries.
type InboundLaneData struct {
	State              LaneState
	Relayers           []UnrewardedRelayer
	LastConfirmedNonce Nonce
}

// NewInboundLaneData returns the record of a freshly opened inbound lane.
func NewInboundLaneData() InboundLaneData {
	return InboundLaneData{State: LaneOpened}
}

// LastDeliveredNonce returns the highest delivered nonce: the end of the last
// relayer entry, or LastConfirmedNonce when no deliveries are pending reward.
func (d InboundLaneData) LastDeliveredNonce() Nonce {
	if len(d.Relayers) == 0 {
		return d.LastConfirmedNonce
	}
	return d.Relayers[len(d.Relayers)-1].Messages.End
}

// TotalUnrewardedMessages counts messages across all pending relayer entries.
func (d *InboundLaneData) TotalUnrewardedMessages() uint64 {
	var total uint64
	for _, entry := range d.Relayers {
		total += entry.Messages.TotalMessages()
	}
	return total
}

// MarshalBinary encodes the record with RLP. The encoding is bit-stable and
// is what relayers prove against.
func (d *InboundLaneData) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(d)
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (d *InboundLaneData) UnmarshalBinary(b []byte) error {
	return rlp.DecodeBytes(b, d)
}

// OutboundLaneData is the sender-side lane record.
//
// Invariant: OldestUnprunedNonce-1 <= LatestReceivedNonce <= LatestGeneratedNonce.
type OutboundLaneData struct {
	State LaneState
	// OldestUnprunedNonce is the nonce of the oldest message still stored.
	// Messages at [OldestUnprunedNonce, LatestReceivedNonce] are confirmed
	// and awaiting pruning.
	OldestUnprunedNonce Nonce
	// LatestReceivedNonce is the highest nonce confirmed delivered by the
	// bridged chain.
	LatestReceivedNonce Nonce
	// LatestGeneratedNonce is the highest nonce assigned to a sent message.
	LatestGeneratedNonce Nonce
}

// NewOutboundLaneData returns the record of a freshly opened outbound lane.
func NewOutboundLaneData() OutboundLaneData {
	return OutboundLaneData{State: LaneOpened, OldestUnprunedNonce: 1}
}

// QueuedMessages returns the inclusive nonce range that has been sent but not
// yet confirmed delivered. The range is empty when end < begin.
func (d OutboundLaneData) QueuedMessages() (begin, end Nonce) {
	return d.LatestReceivedNonce + 1, d.LatestGeneratedNonce
}

// QueuedMessagesLen returns the size of the unconfirmed backlog.
func (d OutboundLaneData) QueuedMessagesLen() uint64 {
	return uint64(d.LatestGeneratedNonce - d.LatestReceivedNonce)
}

// MarshalBinary encodes the record with RLP.
func (d *OutboundLaneData) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(d)
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (d *OutboundLaneData) UnmarshalBinary(b []byte) error {
	return rlp.DecodeBytes(b, d)
}

// UnrewardedRelayersState is the summary a relayer submits alongside a
// delivery-confirmation proof. It caps the work the confirmation transaction
// is allowed to do and must match the proved inbound lane data exactly.
type UnrewardedRelayersState struct {
	// UnrewardedRelayerEntries is the number of pending relayer entries.
	UnrewardedRelayerEntries uint64
	// MessagesInOldestEntry is the message count of the oldest entry.
	MessagesInOldestEntry uint64
	// TotalMessages across all entries.
	TotalMessages uint64
	// LastDeliveredNonce of the inbound lane.
	LastDeliveredNonce Nonce
}

// UnrewardedRelayersStateFrom summarizes an inbound lane record.
func UnrewardedRelayersStateFrom(d *InboundLaneData) UnrewardedRelayersState {
	state := UnrewardedRelayersState{
		UnrewardedRelayerEntries: uint64(len(d.Relayers)),
		TotalMessages:            d.TotalUnrewardedMessages(),
		LastDeliveredNonce:       d.LastDeliveredNonce(),
	}
	if len(d.Relayers) > 0 {
		state.MessagesInOldestEntry = d.Relayers[0].Messages.TotalMessages()
	}
	return state
}

// IsValid reports whether the declared summary matches the proved lane data.
func (s UnrewardedRelayersState) IsValid(d *InboundLaneData) bool {
	return s == UnrewardedRelayersStateFrom(d)
}

// ChainConfig carries the per-bridge limits of the chain a lane lives on.
// The bounds protect the delivery-confirmation transaction's proof size, not
// message contents.
type ChainConfig struct {
	// MaxUnrewardedRelayerEntries bounds InboundLaneData.Relayers.
	MaxUnrewardedRelayerEntries uint64
	// MaxUnconfirmedMessages bounds the in-flight backlog on both lane ends.
	MaxUnconfirmedMessages uint64
}
