package rtpsession

import "time"

// Wire-fixed constants (spec §6).
const (
	// RTPMaxPayload is the maximum number of payload bytes (after any
	// codec-specific header, before SRTP expansion) carried in a single
	// outbound RTP packet.
	RTPMaxPayload = 1400

	// SRTPMaxPrefixLength is the extra room reserved at the tail of an
	// outbound packet buffer so an installed SRTP transform can grow the
	// packet in place (auth tag, MKI) without reallocating.
	SRTPMaxPrefixLength = 148

	// H264RTPHeaderLength is the length in bytes of the FU indicator +
	// FU header pair prefixed to every H.264 FU-A fragment.
	H264RTPHeaderLength = 2

	// RTPEventDefaultSamplePeriodMS is the default inter-packet spacing
	// used while emitting a DTMF event burst (RFC 2833/4733).
	RTPEventDefaultSamplePeriodMS = 50

	// DefaultDTMFPayloadType is used until a remote SDP overrides it via
	// a telephone-event rtpmap attribute.
	DefaultDTMFPayloadType = 101

	// DefaultAudioClockRate is assumed for audio tracks whose capability
	// list does not carry an explicit clock rate (e.g. PCMU/PCMA).
	DefaultAudioClockRate = 8000

	// SDPMediaProfile is the transport/profile string emitted on every
	// SDP media line this session produces.
	SDPMediaProfile = "RTP/AVP"

	// dtmfDuplicateCount is the number of times the start and
	// end-of-event DTMF packets are each repeated, per RFC 4733 best
	// practice (and the teacher's DTMFSender, which resends 3x).
	dtmfDuplicateCount = 3

	// rtpEventSamplePeriod is RTPEventDefaultSamplePeriodMS as a Duration.
	rtpEventSamplePeriod = RTPEventDefaultSamplePeriodMS * time.Millisecond

	// minRTPHeaderLength is the smallest legal RTP header (no CSRC, no
	// extension): version/flags/PT byte, seq, timestamp, SSRC.
	minRTPHeaderLength = 12

	// rtcpSRPacketType and rtcpRRPacketType are the RTCP packet-type
	// octets used to classify an incoming datagram as RTCP vs RTP
	// (spec §4.3 step 3).
	rtcpSRPacketType = 0xC8
	rtcpRRPacketType = 0xC9
)
