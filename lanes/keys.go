package lanes

import "encoding/binary"

var (
	inboundLanePrefix     = []byte("bridge/lanes/in/")
	outboundLanePrefix    = []byte("bridge/lanes/out/")
	outboundMessagePrefix = []byte("bridge/messages/out/")
)

func inboundLaneKey(id LaneID) []byte {
	raw := id.Bytes()
	buf := make([]byte, 0, len(inboundLanePrefix)+len(raw))
	buf = append(buf, inboundLanePrefix...)
	return append(buf, raw...)
}

func outboundLaneKey(id LaneID) []byte {
	raw := id.Bytes()
	buf := make([]byte, 0, len(outboundLanePrefix)+len(raw))
	buf = append(buf, outboundLanePrefix...)
	return append(buf, raw...)
}

func outboundMessageKey(id LaneID, nonce Nonce) []byte {
	raw := id.Bytes()
	buf := make([]byte, 0, len(outboundMessagePrefix)+len(raw)+1+8)
	buf = append(buf, outboundMessagePrefix...)
	buf = append(buf, raw...)
	buf = append(buf, '/')
	return binary.BigEndian.AppendUint64(buf, uint64(nonce))
}
