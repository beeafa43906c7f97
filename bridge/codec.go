package bridge

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"lanebridge/lanes"
)

// Wire layout of proof bodies. The encoding is RLP and must stay bit-stable:
// relayers on old software keep submitting old-format proofs during upgrades.

type messageWire struct {
	Nonce   lanes.Nonce
	Payload []byte
}

type messagesProofBody struct {
	LaneID    lanes.LaneID
	LaneState *lanes.OutboundLaneData `rlp:"nil"`
	Messages  []messageWire
}

// ProveMessages assembles a messages proof for the given queued nonce range
// of this chain's outbound lane. When includeState is set, the proof also
// carries the outbound lane state so the receiving side can clear confirmed
// relayer entries.
func (m *Module) ProveMessages(id lanes.LaneID, begin, end lanes.Nonce, includeState bool) (*MessagesProof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lane, err := m.manager.AnyStateOutboundLane(id)
	if err != nil {
		return nil, err
	}
	data := lane.Data()
	if begin > end {
		return nil, fmt.Errorf("bridge: empty proof range %d..%d", begin, end)
	}
	if begin < data.OldestUnprunedNonce || end > data.LatestGeneratedNonce {
		return nil, fmt.Errorf("bridge: proof range %d..%d outside stored range %d..%d",
			begin, end, data.OldestUnprunedNonce, data.LatestGeneratedNonce)
	}

	body := messagesProofBody{LaneID: id}
	if includeState {
		state := data
		body.LaneState = &state
	}
	for nonce := begin; nonce <= end; nonce++ {
		payload, ok, err := lane.Message(nonce)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("bridge: message %d is not stored", nonce)
		}
		body.Messages = append(body.Messages, messageWire{Nonce: nonce, Payload: payload})
	}

	raw, err := rlp.EncodeToBytes(&body)
	if err != nil {
		return nil, err
	}
	return &MessagesProof{LaneID: id, NoncesBegin: begin, NoncesEnd: end, Proof: raw}, nil
}

// ProveMessagesReceiving assembles a delivery proof from this chain's inbound
// lane state.
func (m *Module) ProveMessagesReceiving(id lanes.LaneID) (*DeliveryProof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lane, err := m.manager.AnyStateInboundLane(id)
	if err != nil {
		return nil, err
	}
	data := lane.Data()
	raw, err := data.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &DeliveryProof{LaneID: id, Proof: raw}, nil
}

// DecodingVerifier interprets proof bodies without cryptographic finality
// verification: it checks structural consistency only. It stands where a
// header-chain storage-proof verifier plugs in; deployments that bridge
// untrusted chains must substitute a real verifier, since everything after
// verification trusts the proved content unconditionally.
type DecodingVerifier struct{}

// VerifyMessagesProof implements ProofVerifier.
func (DecodingVerifier) VerifyMessagesProof(proof *MessagesProof) (*ProvedMessages, error) {
	var body messagesProofBody
	if err := rlp.DecodeBytes(proof.Proof, &body); err != nil {
		return nil, err
	}
	if !bytes.Equal(body.LaneID.Bytes(), proof.LaneID.Bytes()) {
		return nil, errors.New("proof lane id mismatch")
	}
	declared := uint64(0)
	if proof.NoncesEnd >= proof.NoncesBegin {
		declared = uint64(proof.NoncesEnd-proof.NoncesBegin) + 1
	}
	if uint64(len(body.Messages)) != declared {
		return nil, fmt.Errorf("proof carries %d messages, %d declared", len(body.Messages), declared)
	}
	next := proof.NoncesBegin
	proved := &ProvedMessages{LaneID: body.LaneID, LaneState: body.LaneState}
	for _, msg := range body.Messages {
		if msg.Nonce != next {
			return nil, fmt.Errorf("non-contiguous message nonce %d, expected %d", msg.Nonce, next)
		}
		next++
		proved.Messages = append(proved.Messages, Message{Nonce: msg.Nonce, Payload: msg.Payload})
	}
	return proved, nil
}

// VerifyDeliveryProof implements ProofVerifier.
func (DecodingVerifier) VerifyDeliveryProof(proof *DeliveryProof) (*lanes.InboundLaneData, error) {
	var data lanes.InboundLaneData
	if err := data.UnmarshalBinary(proof.Proof); err != nil {
		return nil, err
	}
	return &data, nil
}
