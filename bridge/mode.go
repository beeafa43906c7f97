package bridge

import "fmt"

// OperatingMode gates which bridge operations are allowed. Operators use it
// to halt traffic during incidents or migrations.
type OperatingMode uint8

const (
	// ModeNormal allows all operations.
	ModeNormal OperatingMode = iota
	// ModeRejectingOutbound rejects new outbound messages but still accepts
	// inbound deliveries and confirmations, letting in-flight traffic
	// drain.
	ModeRejectingOutbound
	// ModeHalted rejects everything.
	ModeHalted
)

func (m OperatingMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRejectingOutbound:
		return "rejecting_outbound"
	case ModeHalted:
		return "halted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// allowsOutbound reports whether new messages may be sent.
func (m OperatingMode) allowsOutbound() bool { return m == ModeNormal }

// allowsInbound reports whether proofs may be processed.
func (m OperatingMode) allowsInbound() bool { return m != ModeHalted }
