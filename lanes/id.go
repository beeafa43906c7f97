package lanes

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"
)

// Lane identifiers come in two permanently supported encodings:
//
//   - legacy ids are arbitrary 4-byte tags assigned out of band;
//   - derived ids are 32-byte blake3 digests computed from the two lane
//     endpoints, independent of endpoint order.
//
// Both encodings remain valid decode targets forever, since lane ids are
// storage keys on live chains.
const (
	legacyLaneIDLength  = 4
	derivedLaneIDLength = 32
)

// laneIDSeparator is hashed between the two endpoint identifiers so that
// distinct endpoint pairs with ambiguous concatenations cannot collide.
var laneIDSeparator = []byte("lane")

// ErrUnsupportedLaneID is returned when a lane id variant cannot be derived
// from a pair of endpoints.
var ErrUnsupportedLaneID = errors.New("lanes: lane id variant cannot be derived from endpoints")

// ErrInvalidLaneID is returned when decoding bytes that are neither a legacy
// nor a derived lane id.
var ErrInvalidLaneID = errors.New("lanes: invalid lane id encoding")

// LaneID identifies a bidirectional message channel between two endpoints.
// It is an opaque value type with a total ordering, suitable for use as a
// storage key.
type LaneID struct {
	legacy bool
	raw    [derivedLaneIDLength]byte
}

// NewLaneID derives the id of the lane connecting the two endpoints. The
// derivation is order-independent: NewLaneID(a, b) == NewLaneID(b, a).
func NewLaneID(endpoint1, endpoint2 []byte) LaneID {
	lo, hi := endpoint1, endpoint2
	if bytes.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	h := blake3.New(derivedLaneIDLength, nil)
	h.Write(lo)
	h.Write(laneIDSeparator)
	h.Write(hi)
	var id LaneID
	h.Sum(id.raw[:0])
	return id
}

// TryNewLegacyLaneID always fails: legacy lane ids are assigned out of band
// and carry no derivation rule.
func TryNewLegacyLaneID(endpoint1, endpoint2 []byte) (LaneID, error) {
	return LaneID{}, ErrUnsupportedLaneID
}

// LegacyLaneID wraps a pre-assigned 4-byte lane tag.
func LegacyLaneID(tag [legacyLaneIDLength]byte) LaneID {
	var id LaneID
	id.legacy = true
	copy(id.raw[:], tag[:])
	return id
}

// DecodeLaneID parses a lane id from its binary encoding. The encoding length
// selects the variant: 4 bytes for legacy ids, 32 bytes for derived ids.
func DecodeLaneID(b []byte) (LaneID, error) {
	var id LaneID
	switch len(b) {
	case legacyLaneIDLength:
		id.legacy = true
		copy(id.raw[:], b)
	case derivedLaneIDLength:
		copy(id.raw[:], b)
	default:
		return LaneID{}, fmt.Errorf("%w: unexpected length %d", ErrInvalidLaneID, len(b))
	}
	return id, nil
}

// ParseLaneID parses the hex form produced by String.
func ParseLaneID(s string) (LaneID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return LaneID{}, fmt.Errorf("%w: %v", ErrInvalidLaneID, err)
	}
	return DecodeLaneID(raw)
}

// IsLegacy reports whether the id uses the pre-assigned 4-byte encoding.
func (id LaneID) IsLegacy() bool { return id.legacy }

// Bytes returns the binary encoding of the id: 4 bytes for legacy ids,
// 32 bytes for derived ids.
func (id LaneID) Bytes() []byte {
	if id.legacy {
		return append([]byte(nil), id.raw[:legacyLaneIDLength]...)
	}
	return append([]byte(nil), id.raw[:]...)
}

// Compare orders lane ids. Legacy ids sort before derived ids; within a
// variant the ordering is lexicographic over the raw bytes. The ordering is
// total and stable across processes.
func (id LaneID) Compare(other LaneID) int {
	switch {
	case id.legacy && !other.legacy:
		return -1
	case !id.legacy && other.legacy:
		return 1
	}
	return bytes.Compare(id.Bytes(), other.Bytes())
}

func (id LaneID) String() string {
	return hex.EncodeToString(id.Bytes())
}

// EncodeRLP implements rlp.Encoder.
func (id LaneID) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, id.Bytes())
}

// DecodeRLP implements rlp.Decoder.
func (id *LaneID) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Bytes()
	if err != nil {
		return err
	}
	decoded, err := DecodeLaneID(raw)
	if err != nil {
		return err
	}
	*id = decoded
	return nil
}

// LaneState gates whether a lane end accepts traffic. The two ends of a lane
// may disagree: state transitions are coordinated out of band by operators or
// a higher-level pallet-equivalent.
type LaneState uint8

const (
	// LaneOpened means the lane accepts messages.
	LaneOpened LaneState = iota
	// LaneClosed means the lane rejects new traffic. There is no transition
	// back to LaneOpened at this layer.
	LaneClosed
)

// IsActive reports whether the lane end accepts traffic.
func (s LaneState) IsActive() bool { return s == LaneOpened }

func (s LaneState) String() string {
	switch s {
	case LaneOpened:
		return "opened"
	case LaneClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}
