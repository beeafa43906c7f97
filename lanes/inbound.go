package lanes

import "fmt"

// InboundLaneStorage persists the state of a single inbound lane. The record
// is read once when the lane object is constructed and flushed through
// SetData on every mutation, so the in-memory and persisted views never
// diverge across an invocation.
type InboundLaneStorage interface {
	ID() LaneID
	// MaxUnrewardedRelayerEntries bounds InboundLaneData.Relayers.
	MaxUnrewardedRelayerEntries() uint64
	// MaxUnconfirmedMessages bounds the delivered-but-unconfirmed backlog.
	MaxUnconfirmedMessages() uint64
	Data() InboundLaneData
	SetData(InboundLaneData) error
}

// MessageDispatch hands accepted payloads to the application layer.
type MessageDispatch interface {
	// IsActive reports whether the dispatcher can currently make forward
	// progress for the lane. An inactive dispatcher signals transient
	// backpressure (e.g. downstream queue congestion), distinct from the
	// lane being closed.
	IsActive(lane LaneID) bool
	// Dispatch executes the payload. It is invoked exactly once per
	// accepted message. A dispatch error does not undo the delivery: the
	// nonce is consumed either way.
	Dispatch(lane LaneID, nonce Nonce, payload []byte) error
}

// ReceptionStatus classifies the outcome of a single delivery attempt.
type ReceptionStatus uint8

const (
	// ReceptionDispatched means the message was accepted and dispatched.
	ReceptionDispatched ReceptionStatus = iota
	// ReceptionInvalidNonce means the nonce is not the immediate successor
	// of the last delivered nonce. Expected under concurrent relaying.
	ReceptionInvalidNonce
	// ReceptionTooManyUnrewardedRelayers means the relayer-entry bound
	// would be exceeded. Delivery is blocked until confirmations clear
	// pending entries.
	ReceptionTooManyUnrewardedRelayers
	// ReceptionTooManyUnconfirmedMessages means the unconfirmed backlog
	// bound would be exceeded.
	ReceptionTooManyUnconfirmedMessages
)

func (s ReceptionStatus) String() string {
	switch s {
	case ReceptionDispatched:
		return "dispatched"
	case ReceptionInvalidNonce:
		return "invalid_nonce"
	case ReceptionTooManyUnrewardedRelayers:
		return "too_many_unrewarded_relayers"
	case ReceptionTooManyUnconfirmedMessages:
		return "too_many_unconfirmed_messages"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ReceptionResult reports the outcome of one ReceiveMessage call.
type ReceptionResult struct {
	Status ReceptionStatus
	// DispatchErr is set when the payload was dispatched but the handler
	// reported a failure. The message still counts as delivered.
	DispatchErr error
}

// Dispatched reports whether the message was accepted.
func (r ReceptionResult) Dispatched() bool { return r.Status == ReceptionDispatched }

// InboundLane is the receiver-side lane state machine. It enforces strict
// nonce ordering and records relayer credits; proof validity is the caller's
// concern.
type InboundLane struct {
	storage InboundLaneStorage
}

// NewInboundLane wraps the given storage.
func NewInboundLane(storage InboundLaneStorage) *InboundLane {
	return &InboundLane{storage: storage}
}

// ID returns the lane identifier.
func (l *InboundLane) ID() LaneID { return l.storage.ID() }

// Data returns the current lane record.
func (l *InboundLane) Data() InboundLaneData { return l.storage.Data() }

// ReceiveMessage attempts to deliver a single message. The nonce range was
// already proved against the bridged chain by the caller; only in-lane
// ordering is checked here.
//
// Only nonce == LastDeliveredNonce()+1 is accepted. Anything else is
// rejected without touching lane state, which is what makes delivery
// exactly-once and gap-free. Batches are delivered by calling this once per
// message in ascending nonce order; a rejection does not revert earlier
// acceptances in the same batch.
func (l *InboundLane) ReceiveMessage(relayer string, nonce Nonce, payload []byte, dispatch MessageDispatch) (ReceptionResult, error) {
	data := l.storage.Data()
	if nonce != data.LastDeliveredNonce()+1 {
		return ReceptionResult{Status: ReceptionInvalidNonce}, nil
	}

	// if there are more unrewarded relayer entries than we may accept,
	// reject this message
	if uint64(len(data.Relayers)) >= l.storage.MaxUnrewardedRelayerEntries() {
		return ReceptionResult{Status: ReceptionTooManyUnrewardedRelayers}, nil
	}

	// if there are more unconfirmed messages than we may accept, reject
	// this message
	if uint64(nonce-data.LastConfirmedNonce) > l.storage.MaxUnconfirmedMessages() {
		return ReceptionResult{Status: ReceptionTooManyUnconfirmedMessages}, nil
	}

	dispatchErr := dispatch.Dispatch(l.storage.ID(), nonce, payload)

	if n := len(data.Relayers); n > 0 && data.Relayers[n-1].Relayer == relayer {
		data.Relayers[n-1].Messages.NoteDispatchedMessage()
	} else {
		data.Relayers = append(data.Relayers, UnrewardedRelayer{
			Relayer:  relayer,
			Messages: NewDeliveredMessages(nonce),
		})
	}

	if err := l.storage.SetData(data); err != nil {
		return ReceptionResult{}, err
	}
	return ReceptionResult{Status: ReceptionDispatched, DispatchErr: dispatchErr}, nil
}

// ReceiveStateUpdate applies the bridged chain's outbound lane state to this
// lane: relayer entries fully confirmed by the source chain are dropped and
// LastConfirmedNonce advances. Returns the new confirmed nonce, or nil when
// the update is stale or inconsistent with local state.
func (l *InboundLane) ReceiveStateUpdate(outbound OutboundLaneData) (*Nonce, error) {
	data := l.storage.Data()
	lastDelivered := data.LastDeliveredNonce()

	// should never happen if proofs are correct: the source chain cannot
	// have received confirmation of nonces we never delivered
	if outbound.LatestReceivedNonce > lastDelivered {
		return nil, nil
	}
	if outbound.LatestReceivedNonce <= data.LastConfirmedNonce {
		return nil, nil
	}

	confirmed := outbound.LatestReceivedNonce
	data.LastConfirmedNonce = confirmed

	for len(data.Relayers) > 0 && data.Relayers[0].Messages.End <= confirmed {
		data.Relayers = data.Relayers[1:]
	}
	// at most one remaining entry can straddle the confirmed nonce since
	// relayer ranges never overlap
	if len(data.Relayers) > 0 && data.Relayers[0].Messages.Begin <= confirmed {
		data.Relayers[0].Messages.Begin = confirmed + 1
	}

	if err := l.storage.SetData(data); err != nil {
		return nil, err
	}
	return &confirmed, nil
}
