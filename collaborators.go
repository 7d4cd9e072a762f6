package rtpsession

import (
	"net"
	"time"

	"github.com/pion/rtp"
)

// SocketKind distinguishes the RTP and RTCP control sockets of a Transport
// when they are not multiplexed onto one another.
type SocketKind int

const (
	SocketRTP SocketKind = iota
	SocketControl
)

// Transport is the RtpChannel collaborator of spec §6: one or two UDP
// sockets (RTP, optionally a separate RTCP control socket) that the Session
// sends datagrams through and receives callbacks from. The concrete
// implementation lives in the sibling transport package; Session depends
// only on this interface so it can be faked in tests.
type Transport interface {
	// Send transmits data on the named socket to dest.
	Send(kind SocketKind, dest net.Addr, data []byte) error

	// RTPPort reports the local RTP socket's port (0 if unbound).
	RTPPort() int

	// SetCallbacks installs the Session's demultiplexer entry points.
	// onRTP fires for datagrams read from the RTP socket, onControl for
	// datagrams read from a separate control socket (when one exists),
	// onClosed once when the transport tears itself down.
	SetCallbacks(onRTP, onControl func(local, remote net.Addr, data []byte), onClosed func(reason error))

	// Close tears down the transport's sockets. Idempotent.
	Close(reason error) error
}

// MultiplexedTransport is implemented by a Transport that can report
// whether it carries both RTP and RTCP on the same socket (RTCP-mux, spec
// §4.1). Session does not consult it; its RTCP routing follows
// SessionConfig.IsRTCPMuxed.
type MultiplexedTransport interface {
	Transport
	IsMuxed() bool
}

// RTCPEngine is the RtcpSession collaborator of spec §6: a per-media
// reporting engine that records sent/received RTP activity, periodically
// emits compound RTCP reports, and signals timeout/BYE. The concrete
// implementation lives in the sibling rtcpengine package.
type RTCPEngine interface {
	Start() error
	Close(reason error) error

	// SetSSRC updates the local SSRC carried in reports this engine
	// generates — mutable because a track's SSRC is only known once
	// NewLocalTrack has run, and RTCP engines are constructed by
	// AddTrack alongside it.
	SetSSRC(ssrc uint32)

	// SetClockRate tells the engine the RTP clock rate this media kind's
	// packets are timestamped in, so received-packet transit time (RFC
	// 3550 §A.8 jitter) can be computed in the same units as the RTP
	// timestamp rather than mixed with wall-clock milliseconds.
	SetClockRate(clockRate uint32)

	// LastActivityAt is the timestamp of the most recent sent or
	// received RTP/RTCP activity this engine has recorded.
	LastActivityAt() time.Time

	// RecordSent folds a just-transmitted RTP packet into the outgoing
	// sender-report statistics.
	RecordSent(seqNum uint16, rtpTimestamp uint32, payloadOctets int)

	// RecordReceived folds a received RTP packet into the per-source
	// receiver-report statistics.
	RecordReceived(pkt *rtp.Packet)

	// HandleCompound processes an already-classified, already-unprotected
	// incoming compound RTCP packet addressed to this engine (the
	// RTCP-to-session matching of spec §4.4 happens in Session before
	// this is called).
	HandleCompound(compound RTCPCompound)

	// SetOnReportReady installs the callback invoked whenever this
	// engine has assembled a compound report to transmit; the handler
	// is responsible for actually sending it via the Session's
	// Transport (spec: "on_report_ready(compound) -> session.send_rtcp").
	SetOnReportReady(func(compound RTCPCompound))

	// SetOnTimeout installs the callback invoked when this engine
	// detects the remote side has gone silent past its timeout window.
	SetOnTimeout(func())
}

// Transform is the SRTP/SRTCP protect/unprotect leaf of spec §2 item 1: a
// mutable-buffer-in-place packet transform. buf has payload bytes in
// [0:declaredLen] and SRTPMaxPrefixLength bytes of headroom after
// declaredLen for a protect call to grow the packet into (auth tag, MKI).
// Returns the new length, or a non-nil error on failure (packet dropped,
// never propagated — spec §7).
type Transform func(buf []byte, declaredLen int) (newLen int, err error)

// SecurityContext bundles the four independent transforms of spec §2 item
// 1. Any or all of the four may be nil, in which case that direction/plane
// passes through unprotected. A Session with IsSecure=true does not apply
// any transform — inbound or outbound — until SetSecurityContext has
// installed them (spec §3 secure_context_ready, §4.3 step 2, §4.5 step 1).
type SecurityContext struct {
	ProtectRTP    Transform
	UnprotectRTP  Transform
	ProtectRTCP   Transform
	UnprotectRTCP Transform
}
