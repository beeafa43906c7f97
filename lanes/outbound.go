package lanes

import "errors"

// Reception-confirmation errors. A failed confirmation leaves the outbound
// lane untouched.
var (
	// ErrFailedToConfirmFutureMessages means the proof claims delivery of
	// nonces that were never generated on this lane.
	ErrFailedToConfirmFutureMessages = errors.New("lanes: trying to confirm future messages")
	// ErrEmptyUnrewardedRelayerEntry means a relayer entry in the proved
	// inbound lane data covers no messages.
	ErrEmptyUnrewardedRelayerEntry = errors.New("lanes: empty unrewarded relayer entry")
	// ErrNonConsecutiveUnrewardedRelayerEntries means the relayer entries
	// in the proved inbound lane data are not contiguous.
	ErrNonConsecutiveUnrewardedRelayerEntries = errors.New("lanes: non-consecutive unrewarded relayer entries")
	// ErrTryingToConfirmMoreMessagesThanExpected means the confirmation
	// advances further than the declared relayers state allows.
	ErrTryingToConfirmMoreMessagesThanExpected = errors.New("lanes: trying to confirm more messages than expected")
)

// OutboundLaneStorage persists the state of a single outbound lane together
// with its queued message payloads. Same read-once, flush-on-write discipline
// as InboundLaneStorage.
type OutboundLaneStorage interface {
	ID() LaneID
	Data() OutboundLaneData
	SetData(OutboundLaneData) error
	// SaveMessage persists the payload under the given nonce. Payloads are
	// immutable once stored: they are only ever inserted and removed.
	SaveMessage(nonce Nonce, payload []byte) error
	// Message loads a stored payload. The second return is false when the
	// nonce has been pruned or never existed.
	Message(nonce Nonce) ([]byte, bool, error)
	RemoveMessage(nonce Nonce) error
}

// OutboundLane is the sender-side lane state machine: it assigns nonces,
// tracks confirmed deliveries and prunes confirmed payloads.
type OutboundLane struct {
	storage OutboundLaneStorage
}

// NewOutboundLane wraps the given storage.
func NewOutboundLane(storage OutboundLaneStorage) *OutboundLane {
	return &OutboundLane{storage: storage}
}

// ID returns the lane identifier.
func (l *OutboundLane) ID() LaneID { return l.storage.ID() }

// Data returns the current lane record.
func (l *OutboundLane) Data() OutboundLaneData { return l.storage.Data() }

// Message loads a queued payload by nonce.
func (l *OutboundLane) Message(nonce Nonce) ([]byte, bool, error) {
	return l.storage.Message(nonce)
}

// SendMessage assigns the next nonce to the payload and persists it. The
// caller is responsible for the lane-open and backlog-cap preconditions;
// this layer only records the send.
func (l *OutboundLane) SendMessage(payload []byte) (Nonce, error) {
	data := l.storage.Data()
	nonce := data.LatestGeneratedNonce + 1
	data.LatestGeneratedNonce = nonce

	if err := l.storage.SaveMessage(nonce, payload); err != nil {
		return 0, err
	}
	if err := l.storage.SetData(data); err != nil {
		return 0, err
	}
	return nonce, nil
}

// ConfirmDelivery marks messages up to latestDelivered as delivered, based on
// an already-verified delivery proof. A stale confirmation (latestDelivered
// not ahead of the lane) is a no-op, not an error. On success the
// newly-confirmed range is returned for event emission.
//
// The relayers vector comes from the proved inbound lane data and is
// revalidated here: entries must be non-empty, contiguous, and must not
// reach past latestDelivered.
func (l *OutboundLane) ConfirmDelivery(maxAllowedMessages uint64, latestDelivered Nonce, relayers []UnrewardedRelayer) (*DeliveredMessages, error) {
	data := l.storage.Data()
	if latestDelivered <= data.LatestReceivedNonce {
		return nil, nil
	}
	if latestDelivered > data.LatestGeneratedNonce {
		return nil, ErrFailedToConfirmFutureMessages
	}
	if uint64(latestDelivered-data.LatestReceivedNonce) > maxAllowedMessages {
		return nil, ErrTryingToConfirmMoreMessagesThanExpected
	}
	if err := ensureUnrewardedRelayersAreCorrect(latestDelivered, relayers); err != nil {
		return nil, err
	}

	prevReceived := data.LatestReceivedNonce
	data.LatestReceivedNonce = latestDelivered
	if err := l.storage.SetData(data); err != nil {
		return nil, err
	}

	return &DeliveredMessages{Begin: prevReceived + 1, End: latestDelivered}, nil
}

// PruneMessages removes up to maxToPrune stored payloads whose delivery has
// been confirmed, advancing OldestUnprunedNonce. Bounding the work per call
// keeps single-transaction cost flat; pruning is amortized across sends.
func (l *OutboundLane) PruneMessages(maxToPrune uint64) (uint64, error) {
	data := l.storage.Data()
	var pruned uint64
	for pruned < maxToPrune && data.OldestUnprunedNonce <= data.LatestReceivedNonce {
		if err := l.storage.RemoveMessage(data.OldestUnprunedNonce); err != nil {
			return pruned, err
		}
		data.OldestUnprunedNonce++
		pruned++
	}
	if pruned > 0 {
		if err := l.storage.SetData(data); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

func ensureUnrewardedRelayersAreCorrect(latestReceived Nonce, relayers []UnrewardedRelayer) error {
	var expectedBegin Nonce
	if len(relayers) > 0 {
		expectedBegin = relayers[0].Messages.Begin
	}
	for _, entry := range relayers {
		// unrewarded relayer entry must have at least 1 unconfirmed message
		if entry.Messages.End < entry.Messages.Begin {
			return ErrEmptyUnrewardedRelayerEntry
		}
		// every entry must confirm at least 1 message
		if entry.Messages.Begin != expectedBegin {
			return ErrNonConsecutiveUnrewardedRelayerEntries
		}
		expectedBegin = entry.Messages.End + 1
		// entries must point to nonces that are <= latest received nonce
		if entry.Messages.End > latestReceived {
			return ErrFailedToConfirmFutureMessages
		}
	}
	return nil
}
