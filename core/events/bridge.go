package events

import (
	"strconv"
	"strings"
)

const (
	TypeMessageAccepted   = "bridge.message_accepted"
	TypeMessagesReceived  = "bridge.messages_received"
	TypeMessagesDelivered = "bridge.messages_delivered"
	TypeLaneOpened        = "bridge.lane_opened"
	TypeLanePurged        = "bridge.lane_purged"
)

// MessageAccepted is emitted when an outbound message is queued and assigned
// a nonce.
type MessageAccepted struct {
	LaneID   string
	Nonce    uint64
	Enqueued uint64
}

func (MessageAccepted) EventType() string { return TypeMessageAccepted }

func (e MessageAccepted) Attributes() map[string]string {
	return map[string]string{
		"laneId":   e.LaneID,
		"nonce":    strconv.FormatUint(e.Nonce, 10),
		"enqueued": strconv.FormatUint(e.Enqueued, 10),
	}
}

// MessagesReceived is emitted after a messages proof has been processed,
// whether or not every bundled message was accepted.
type MessagesReceived struct {
	LaneID  string
	Relayer string
	// Results holds one reception outcome label per bundled message, in
	// nonce order.
	Results []string
}

func (MessagesReceived) EventType() string { return TypeMessagesReceived }

func (e MessagesReceived) Attributes() map[string]string {
	return map[string]string{
		"laneId":  e.LaneID,
		"relayer": e.Relayer,
		"results": strings.Join(e.Results, ","),
	}
}

// MessagesDelivered is emitted when a delivery-confirmation proof confirms a
// new range of outbound messages.
type MessagesDelivered struct {
	LaneID string
	Begin  uint64
	End    uint64
}

func (MessagesDelivered) EventType() string { return TypeMessagesDelivered }

func (e MessagesDelivered) Attributes() map[string]string {
	return map[string]string{
		"laneId": e.LaneID,
		"begin":  strconv.FormatUint(e.Begin, 10),
		"end":    strconv.FormatUint(e.End, 10),
	}
}

// LaneOpened is emitted when a lane end is created.
type LaneOpened struct {
	LaneID    string
	Direction string
}

func (LaneOpened) EventType() string { return TypeLaneOpened }

func (e LaneOpened) Attributes() map[string]string {
	return map[string]string{
		"laneId":    e.LaneID,
		"direction": e.Direction,
	}
}

// LanePurged is emitted when a lane end is permanently decommissioned.
type LanePurged struct {
	LaneID    string
	Direction string
}

func (LanePurged) EventType() string { return TypeLanePurged }

func (e LanePurged) Attributes() map[string]string {
	return map[string]string{
		"laneId":    e.LaneID,
		"direction": e.Direction,
	}
}
