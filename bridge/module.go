package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lanebridge/core/events"
	"lanebridge/lanes"
	"lanebridge/observability"
)

// Submission-level errors. Lane-level errors from the lanes package pass
// through wrapped.
var (
	// ErrNotOperatingNormally means the module's operating mode rejects the
	// requested operation.
	ErrNotOperatingNormally = errors.New("bridge: module is not operating normally")
	// ErrMessageDispatchInactive means the inbound dispatcher reports it
	// cannot make forward progress; retry later.
	ErrMessageDispatchInactive = errors.New("bridge: message dispatcher is inactive")
	// ErrTooManyMessagesInProof means the submission declares more messages
	// than a single confirmation transaction could ever cover.
	ErrTooManyMessagesInProof = errors.New("bridge: too many messages in the proof")
	// ErrTooManyQueuedMessages means the outbound backlog cap was hit; new
	// sends are refused until confirmations drain the queue.
	ErrTooManyQueuedMessages = errors.New("bridge: too many queued messages")
	// ErrMessageTooLarge means the payload exceeds the stored-message bound.
	ErrMessageTooLarge = errors.New("bridge: message payload too large")
	// ErrInvalidMessagesProof means proof verification failed.
	ErrInvalidMessagesProof = errors.New("bridge: invalid messages proof")
	// ErrInvalidDeliveryProof means delivery-proof verification failed.
	ErrInvalidDeliveryProof = errors.New("bridge: invalid messages delivery proof")
	// ErrInvalidUnrewardedRelayersState means the declared relayers summary
	// does not match the proved inbound lane data.
	ErrInvalidUnrewardedRelayersState = errors.New("bridge: invalid unrewarded relayers state")
	// ErrStaleSubmission means the submission cannot advance the lane at
	// all. It is screened out before proof verification and is benign:
	// another relayer already delivered the range.
	ErrStaleSubmission = errors.New("bridge: stale submission")
)

const (
	// defaultMaxMessageSize bounds stored payloads.
	defaultMaxMessageSize = 64 * 1024
	// defaultPruneDepth bounds the prune pass piggybacked on each send.
	defaultPruneDepth = 8
)

// SendArtifacts reports the outcome of a successful send.
type SendArtifacts struct {
	Nonce lanes.Nonce
	// Enqueued is the unconfirmed backlog size after the send, so senders
	// can observe congestion.
	Enqueued uint64
}

// ReceivedMessages summarizes the processing of one messages proof.
type ReceivedMessages struct {
	LaneID  lanes.LaneID
	Results []lanes.ReceptionResult
}

// Valid counts the messages that were accepted and dispatched.
func (r *ReceivedMessages) Valid() int {
	valid := 0
	for _, res := range r.Results {
		if res.Dispatched() {
			valid++
		}
	}
	return valid
}

// Module is the chain-side bridge engine: the single entry point for sending
// messages, processing proved inbound deliveries and processing delivery
// confirmations. It owns a lanes.Manager and trusts an injected
// ProofVerifier for everything crossing the chain boundary.
//
// On a real chain every call runs inside the deterministic state-transition
// function; here a mutex serializes calls so the storage discipline of the
// lane objects is preserved.
type Module struct {
	mu sync.Mutex

	manager  *lanes.Manager
	verifier ProofVerifier
	dispatch lanes.MessageDispatch
	payments DeliveryConfirmationPayments
	emitter  events.Emitter
	log      *slog.Logger
	metrics  *observability.BridgeMetrics

	mode           OperatingMode
	maxMessageSize int
	pruneDepth     uint64
}

// Option customises the module instance.
type Option func(*Module)

// WithEmitter supplies the event emitter. Passing nil keeps the no-op one.
func WithEmitter(emitter events.Emitter) Option {
	return func(m *Module) {
		if emitter != nil {
			m.emitter = emitter
		}
	}
}

// WithPayments supplies the relayer reward settlement implementation.
func WithPayments(payments DeliveryConfirmationPayments) Option {
	return func(m *Module) {
		if payments != nil {
			m.payments = payments
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMaxMessageSize overrides the stored payload bound.
func WithMaxMessageSize(size int) Option {
	return func(m *Module) {
		if size > 0 {
			m.maxMessageSize = size
		}
	}
}

// WithPruneDepth overrides how many confirmed payloads one send may prune.
func WithPruneDepth(depth uint64) Option {
	return func(m *Module) {
		if depth > 0 {
			m.pruneDepth = depth
		}
	}
}

// NewModule wires the bridge engine. dispatch handles accepted inbound
// payloads and doubles as the liveness probe for inbound lanes.
func NewModule(manager *lanes.Manager, verifier ProofVerifier, dispatch lanes.MessageDispatch, opts ...Option) *Module {
	m := &Module{
		manager:        manager,
		verifier:       verifier,
		dispatch:       dispatch,
		payments:       NoopPayments{},
		emitter:        events.NoopEmitter{},
		log:            slog.Default().With("component", "bridge"),
		metrics:        observability.Bridge(),
		mode:           ModeNormal,
		maxMessageSize: defaultMaxMessageSize,
		pruneDepth:     defaultPruneDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the current operating mode.
func (m *Module) Mode() OperatingMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetOperatingMode switches the module's operating mode.
func (m *Module) SetOperatingMode(mode OperatingMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Info("operating mode changed", "from", m.mode.String(), "to", mode.String())
	m.mode = mode
}

// OpenLane creates both ends of the lane served by this chain: the outbound
// end towards the bridged chain and the inbound end from it.
func (m *Module) OpenLane(id lanes.LaneID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.manager.CreateOutboundLane(id); err != nil {
		return err
	}
	if _, err := m.manager.CreateInboundLane(id); err != nil {
		return err
	}
	m.emitter.Emit(events.LaneOpened{LaneID: id.String(), Direction: "both"})
	m.log.Info("lane opened", "lane", id.String())
	return nil
}

// PurgeLane permanently removes both ends of the lane, including stored
// outbound payloads. Purging is terminal; the id can only be recreated from
// scratch via OpenLane.
func (m *Module) PurgeLane(id lanes.LaneID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.manager.PurgeInboundLane(id); err != nil {
		return err
	}
	if err := m.manager.PurgeOutboundLane(id); err != nil {
		return err
	}
	m.emitter.Emit(events.LanePurged{LaneID: id.String(), Direction: "both"})
	m.log.Info("lane purged", "lane", id.String())
	return nil
}

// SendMessage queues a payload on the outbound lane and assigns it a nonce.
// Each accepted send also runs one bounded prune pass so confirmed payloads
// are reclaimed without a dedicated maintenance transaction.
func (m *Module) SendMessage(id lanes.LaneID, payload []byte) (*SendArtifacts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mode.allowsOutbound() {
		return nil, ErrNotOperatingNormally
	}
	if len(payload) > m.maxMessageSize {
		return nil, ErrMessageTooLarge
	}

	lane, err := m.manager.ActiveOutboundLane(id)
	if err != nil {
		return nil, err
	}
	if lane.Data().QueuedMessagesLen() >= m.manager.Config().MaxUnconfirmedMessages {
		return nil, ErrTooManyQueuedMessages
	}

	nonce, err := lane.SendMessage(payload)
	if err != nil {
		return nil, err
	}
	if _, err := lane.PruneMessages(m.pruneDepth); err != nil {
		return nil, err
	}

	enqueued := lane.Data().QueuedMessagesLen()
	m.emitter.Emit(events.MessageAccepted{LaneID: id.String(), Nonce: uint64(nonce), Enqueued: enqueued})
	m.metrics.RecordAccepted(id.String(), enqueued)
	m.log.Debug("message accepted", "lane", id.String(), "nonce", uint64(nonce), "size", len(payload))
	return &SendArtifacts{Nonce: nonce, Enqueued: enqueued}, nil
}

// ReceiveMessagesProof verifies a proved range of the bridged chain's
// outbound messages and feeds them to the inbound lane in ascending nonce
// order. Messages the lane rejects do not abort the submission: earlier
// acceptances stay committed and later messages are still attempted.
func (m *Module) ReceiveMessagesProof(relayer string, proof *MessagesProof) (*ReceivedMessages, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mode.allowsInbound() {
		return nil, ErrNotOperatingNormally
	}
	declared := uint64(0)
	if proof.NoncesEnd >= proof.NoncesBegin {
		declared = uint64(proof.NoncesEnd-proof.NoncesBegin) + 1
	}
	if declared > m.manager.Config().MaxUnconfirmedMessages {
		return nil, ErrTooManyMessagesInProof
	}
	if m.dispatch != nil && !m.dispatch.IsActive(proof.LaneID) {
		return nil, ErrMessageDispatchInactive
	}
	if err := m.filterMessagesProofLocked(proof.LaneID, proof.NoncesEnd); err != nil {
		return nil, err
	}

	proved, err := m.verifier.VerifyMessagesProof(proof)
	if err != nil {
		m.log.Warn("rejecting invalid messages proof", "lane", proof.LaneID.String(), "err", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessagesProof, err)
	}

	lane, err := m.manager.ActiveInboundLane(proved.LaneID)
	if err != nil {
		return nil, err
	}

	if proved.LaneState != nil {
		confirmed, err := lane.ReceiveStateUpdate(*proved.LaneState)
		if err != nil {
			return nil, err
		}
		if confirmed != nil {
			m.log.Debug("received lane state update",
				"lane", proved.LaneID.String(),
				"latest_confirmed_nonce", uint64(*confirmed))
		}
	}

	received := &ReceivedMessages{LaneID: proved.LaneID, Results: make([]lanes.ReceptionResult, 0, len(proved.Messages))}
	resultLabels := make([]string, 0, len(proved.Messages))
	for _, msg := range proved.Messages {
		res, err := lane.ReceiveMessage(relayer, msg.Nonce, msg.Payload, m.dispatch)
		if err != nil {
			return nil, err
		}
		if res.DispatchErr != nil {
			m.metrics.RecordDispatchError(proved.LaneID.String())
			m.log.Warn("message dispatch failed",
				"lane", proved.LaneID.String(), "nonce", uint64(msg.Nonce), "err", res.DispatchErr)
		}
		m.metrics.RecordReception(proved.LaneID.String(), res.Status.String())
		received.Results = append(received.Results, res)
		resultLabels = append(resultLabels, res.Status.String())
	}

	m.emitter.Emit(events.MessagesReceived{
		LaneID:  proved.LaneID.String(),
		Relayer: relayer,
		Results: resultLabels,
	})
	m.log.Debug("received messages",
		"lane", proved.LaneID.String(),
		"total", len(received.Results),
		"valid", received.Valid())
	return received, nil
}

// ReceiveMessagesDeliveryProof verifies the bridged chain's inbound lane
// state and confirms delivery of our outbound messages, paying relayer
// rewards for the newly confirmed range.
func (m *Module) ReceiveMessagesDeliveryProof(confirmationRelayer string, proof *DeliveryProof, relayersState lanes.UnrewardedRelayersState) (*lanes.DeliveredMessages, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mode.allowsInbound() {
		return nil, ErrNotOperatingNormally
	}
	if err := m.filterDeliveryProofLocked(proof.LaneID, relayersState); err != nil {
		return nil, err
	}

	laneData, err := m.verifier.VerifyDeliveryProof(proof)
	if err != nil {
		m.log.Warn("rejecting invalid messages delivery proof", "lane", proof.LaneID.String(), "err", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeliveryProof, err)
	}
	if !relayersState.IsValid(laneData) {
		return nil, ErrInvalidUnrewardedRelayersState
	}

	lane, err := m.manager.ActiveOutboundLane(proof.LaneID)
	if err != nil {
		return nil, err
	}

	lastDelivered := laneData.LastDeliveredNonce()
	confirmed, err := lane.ConfirmDelivery(relayersState.TotalMessages, lastDelivered, laneData.Relayers)
	if err != nil {
		return nil, err
	}
	if confirmed == nil {
		// lags between the proof being built and processed may leave
		// nothing new to confirm
		return nil, nil
	}

	rewarded := m.payments.PayReward(proof.LaneID, laneData.Relayers, confirmationRelayer, *confirmed)
	enqueued := lane.Data().QueuedMessagesLen()

	m.emitter.Emit(events.MessagesDelivered{
		LaneID: proof.LaneID.String(),
		Begin:  uint64(confirmed.Begin),
		End:    uint64(confirmed.End),
	})
	m.metrics.RecordDelivered(proof.LaneID.String(), confirmed.TotalMessages(), enqueued)
	m.log.Debug("received messages delivery proof",
		"lane", proof.LaneID.String(),
		"last_delivered_nonce", uint64(lastDelivered),
		"rewarded_relayers", rewarded)
	return confirmed, nil
}

// OutboundLaneData returns the outbound lane record for administrative and
// relay reads.
func (m *Module) OutboundLaneData(id lanes.LaneID) (*lanes.OutboundLaneData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lane, err := m.manager.AnyStateOutboundLane(id)
	if err != nil {
		return nil, err
	}
	data := lane.Data()
	return &data, nil
}

// InboundLaneData returns the inbound lane record.
func (m *Module) InboundLaneData(id lanes.LaneID) (*lanes.InboundLaneData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lane, err := m.manager.AnyStateInboundLane(id)
	if err != nil {
		return nil, err
	}
	data := lane.Data()
	return &data, nil
}

// OutboundMessage returns a queued payload, or false when it was pruned or
// never sent.
func (m *Module) OutboundMessage(id lanes.LaneID, nonce lanes.Nonce) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lane, err := m.manager.AnyStateOutboundLane(id)
	if err != nil {
		return nil, false, err
	}
	return lane.Message(nonce)
}

// FilterMessagesProof is the pre-dispatch staleness filter for messages
// proofs: a submission whose whole range is already delivered is rejected
// before any proof verification work. Partially stale ranges pass the filter;
// the inbound lane's per-message ordering check skips the delivered prefix.
func (m *Module) FilterMessagesProof(id lanes.LaneID, noncesEnd lanes.Nonce) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterMessagesProofLocked(id, noncesEnd)
}

func (m *Module) filterMessagesProofLocked(id lanes.LaneID, noncesEnd lanes.Nonce) error {
	lane, err := m.manager.AnyStateInboundLane(id)
	if err != nil {
		return err
	}
	data := lane.Data()
	if noncesEnd <= data.LastDeliveredNonce() {
		return ErrStaleSubmission
	}
	return nil
}

// FilterDeliveryProof is the pre-dispatch staleness filter for delivery
// proofs.
func (m *Module) FilterDeliveryProof(id lanes.LaneID, relayersState lanes.UnrewardedRelayersState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterDeliveryProofLocked(id, relayersState)
}

func (m *Module) filterDeliveryProofLocked(id lanes.LaneID, relayersState lanes.UnrewardedRelayersState) error {
	lane, err := m.manager.AnyStateOutboundLane(id)
	if err != nil {
		return err
	}
	if relayersState.LastDeliveredNonce <= lane.Data().LatestReceivedNonce {
		return ErrStaleSubmission
	}
	return nil
}
