package lanes

import (
	"errors"
	"fmt"

	"lanebridge/storage"
)

// Lane lifecycle and access errors. All are recoverable by the caller.
var (
	ErrInboundLaneAlreadyExists  = errors.New("lanes: inbound lane already exists")
	ErrOutboundLaneAlreadyExists = errors.New("lanes: outbound lane already exists")
	ErrUnknownInboundLane        = errors.New("lanes: unknown inbound lane")
	ErrUnknownOutboundLane       = errors.New("lanes: unknown outbound lane")
	ErrClosedInboundLane         = errors.New("lanes: inbound lane is closed")
	ErrClosedOutboundLane        = errors.New("lanes: outbound lane is closed")
	// ErrLaneDispatcherInactive means the lane is open but its message
	// dispatcher cannot currently make forward progress. Callers should
	// treat this as transient backpressure, not permanent closure.
	ErrLaneDispatcherInactive = errors.New("lanes: lane dispatcher is inactive")
)

// Manager is the single point of truth for lane lifecycle and state-gated
// access. Lane handles returned by the manager cache their record and flush
// every mutation back to the injected key-value store.
//
// Per lane the state machine is Uncreated -> Opened -> Closed; reopening a
// closed lane is not handled at this layer.
type Manager struct {
	db       storage.Database
	cfg      ChainConfig
	dispatch MessageDispatch
}

// NewManager creates a manager over the given store. dispatch is consulted by
// ActiveInboundLane for the dispatcher liveness check; it may be nil when the
// manager only serves outbound lanes.
func NewManager(db storage.Database, cfg ChainConfig, dispatch MessageDispatch) *Manager {
	return &Manager{db: db, cfg: cfg, dispatch: dispatch}
}

// Config returns the chain limits the manager was built with.
func (m *Manager) Config() ChainConfig { return m.cfg }

// CreateInboundLane initializes a new inbound lane in the Opened state and
// returns a live handle.
func (m *Manager) CreateInboundLane(id LaneID) (*InboundLane, error) {
	key := inboundLaneKey(id)
	exists, err := m.db.Has(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrInboundLaneAlreadyExists
	}
	st := &kvInboundLaneStorage{db: m.db, id: id, cfg: m.cfg, data: NewInboundLaneData()}
	if err := st.SetData(st.data); err != nil {
		return nil, err
	}
	return NewInboundLane(st), nil
}

// CreateOutboundLane initializes a new outbound lane in the Opened state and
// returns a live handle.
func (m *Manager) CreateOutboundLane(id LaneID) (*OutboundLane, error) {
	key := outboundLaneKey(id)
	exists, err := m.db.Has(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrOutboundLaneAlreadyExists
	}
	st := &kvOutboundLaneStorage{db: m.db, id: id, data: NewOutboundLaneData()}
	if err := st.SetData(st.data); err != nil {
		return nil, err
	}
	return NewOutboundLane(st), nil
}

// ActiveInboundLane fetches an existing inbound lane, requiring it to be
// Opened and its dispatcher to be live.
func (m *Manager) ActiveInboundLane(id LaneID) (*InboundLane, error) {
	lane, err := m.AnyStateInboundLane(id)
	if err != nil {
		return nil, err
	}
	if !lane.Data().State.IsActive() {
		return nil, ErrClosedInboundLane
	}
	if m.dispatch != nil && !m.dispatch.IsActive(id) {
		return nil, ErrLaneDispatcherInactive
	}
	return lane, nil
}

// ActiveOutboundLane fetches an existing outbound lane, requiring it to be
// Opened.
func (m *Manager) ActiveOutboundLane(id LaneID) (*OutboundLane, error) {
	lane, err := m.AnyStateOutboundLane(id)
	if err != nil {
		return nil, err
	}
	if !lane.Data().State.IsActive() {
		return nil, ErrClosedOutboundLane
	}
	return lane, nil
}

// AnyStateInboundLane fetches an existing inbound lane regardless of its
// state. Intended for administrative reads.
func (m *Manager) AnyStateInboundLane(id LaneID) (*InboundLane, error) {
	data, err := m.readInboundLaneData(id)
	if err != nil {
		return nil, err
	}
	st := &kvInboundLaneStorage{db: m.db, id: id, cfg: m.cfg, data: *data}
	return NewInboundLane(st), nil
}

// AnyStateOutboundLane fetches an existing outbound lane regardless of its
// state.
func (m *Manager) AnyStateOutboundLane(id LaneID) (*OutboundLane, error) {
	data, err := m.readOutboundLaneData(id)
	if err != nil {
		return nil, err
	}
	st := &kvOutboundLaneStorage{db: m.db, id: id, data: *data}
	return NewOutboundLane(st), nil
}

// CloseInboundLane moves the lane into the Closed state. Closed lanes keep
// their record for administrative reads until purged.
func (m *Manager) CloseInboundLane(id LaneID) error {
	lane, err := m.AnyStateInboundLane(id)
	if err != nil {
		return err
	}
	data := lane.Data()
	data.State = LaneClosed
	return lane.storage.SetData(data)
}

// CloseOutboundLane moves the lane into the Closed state.
func (m *Manager) CloseOutboundLane(id LaneID) error {
	lane, err := m.AnyStateOutboundLane(id)
	if err != nil {
		return err
	}
	data := lane.Data()
	data.State = LaneClosed
	return lane.storage.SetData(data)
}

// PurgeInboundLane irreversibly removes the lane record. Only valid when the
// lane is being permanently decommissioned.
func (m *Manager) PurgeInboundLane(id LaneID) error {
	if _, err := m.readInboundLaneData(id); err != nil {
		return err
	}
	return m.db.Delete(inboundLaneKey(id))
}

// PurgeOutboundLane irreversibly removes the lane record and every stored
// payload it still owns.
func (m *Manager) PurgeOutboundLane(id LaneID) error {
	data, err := m.readOutboundLaneData(id)
	if err != nil {
		return err
	}
	for nonce := data.OldestUnprunedNonce; nonce <= data.LatestGeneratedNonce; nonce++ {
		if err := m.db.Delete(outboundMessageKey(id, nonce)); err != nil {
			return err
		}
	}
	return m.db.Delete(outboundLaneKey(id))
}

func (m *Manager) readInboundLaneData(id LaneID) (*InboundLaneData, error) {
	raw, err := m.db.Get(inboundLaneKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrUnknownInboundLane
	}
	if err != nil {
		return nil, err
	}
	var data InboundLaneData
	if err := data.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("lanes: decode inbound lane %s: %w", id, err)
	}
	return &data, nil
}

func (m *Manager) readOutboundLaneData(id LaneID) (*OutboundLaneData, error) {
	raw, err := m.db.Get(outboundLaneKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrUnknownOutboundLane
	}
	if err != nil {
		return nil, err
	}
	var data OutboundLaneData
	if err := data.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("lanes: decode outbound lane %s: %w", id, err)
	}
	return &data, nil
}

// kvInboundLaneStorage backs an inbound lane with the key-value store. The
// cached record is the authoritative in-memory view; SetData writes both.
type kvInboundLaneStorage struct {
	db   storage.Database
	id   LaneID
	cfg  ChainConfig
	data InboundLaneData
}

func (s *kvInboundLaneStorage) ID() LaneID { return s.id }

func (s *kvInboundLaneStorage) MaxUnrewardedRelayerEntries() uint64 {
	return s.cfg.MaxUnrewardedRelayerEntries
}

func (s *kvInboundLaneStorage) MaxUnconfirmedMessages() uint64 {
	return s.cfg.MaxUnconfirmedMessages
}

func (s *kvInboundLaneStorage) Data() InboundLaneData { return s.data }

func (s *kvInboundLaneStorage) SetData(data InboundLaneData) error {
	raw, err := data.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.db.Put(inboundLaneKey(s.id), raw); err != nil {
		return err
	}
	s.data = data
	return nil
}

type kvOutboundLaneStorage struct {
	db   storage.Database
	id   LaneID
	data OutboundLaneData
}

func (s *kvOutboundLaneStorage) ID() LaneID { return s.id }

func (s *kvOutboundLaneStorage) Data() OutboundLaneData { return s.data }

func (s *kvOutboundLaneStorage) SetData(data OutboundLaneData) error {
	raw, err := data.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.db.Put(outboundLaneKey(s.id), raw); err != nil {
		return err
	}
	s.data = data
	return nil
}

func (s *kvOutboundLaneStorage) SaveMessage(nonce Nonce, payload []byte) error {
	return s.db.Put(outboundMessageKey(s.id, nonce), payload)
}

func (s *kvOutboundLaneStorage) Message(nonce Nonce) ([]byte, bool, error) {
	payload, err := s.db.Get(outboundMessageKey(s.id, nonce))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *kvOutboundLaneStorage) RemoveMessage(nonce Nonce) error {
	return s.db.Delete(outboundMessageKey(s.id, nonce))
}
