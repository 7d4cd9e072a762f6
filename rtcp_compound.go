package rtpsession

import "github.com/pion/rtcp"

// RTCPCompound is a parsed/assembled compound RTCP packet: an ordered list
// of individual packets (SR/RR, SDES, BYE, ...) that travel together in one
// datagram per RFC 3550 §6.1. The wire codec itself is pion/rtcp's — this
// type only carries the slice across the Session/RTCPEngine boundary (spec
// §4.4/§6 "compound").
type RTCPCompound []rtcp.Packet

// Marshal serializes the compound packet to wire bytes.
func (c RTCPCompound) Marshal() ([]byte, error) {
	return rtcp.Marshal([]rtcp.Packet(c))
}

// unmarshalRTCPCompound parses a received datagram into its constituent
// RTCP packets.
func unmarshalRTCPCompound(data []byte) (RTCPCompound, error) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return RTCPCompound(pkts), nil
}
