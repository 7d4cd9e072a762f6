package rtpsession

import "sync/atomic"

// Track is the per-stream send/receive handle described in spec §3. A
// Session holds at most one local and one remote Track per MediaKind.
type Track struct {
	Kind     MediaKind
	IsRemote bool

	// ssrc is 0 for a freshly constructed remote track until learned from
	// the first received RTP packet or RTCP report (spec §4.3). Accessed
	// atomically because the demultiplexer writes it from a different
	// goroutine than any reader.
	ssrc uint32

	// seqNum/timestamp are only meaningful, and only mutated, for local
	// tracks — the send path owns them exclusively (spec §5). Atomic so
	// SequenceNumber/Timestamp can be read from other goroutines
	// without a session-wide lock.
	seqNum    uint32 // low 16 bits significant
	timestamp uint32

	MediaID      string
	Capabilities []Codec

	status Direction
}

// NewLocalTrack builds a local track with an SSRC and initial
// sequence-number/timestamp drawn from rnd, per spec §3.
func NewLocalTrack(kind MediaKind, caps []Codec, rnd RandomSource) *Track {
	if rnd == nil {
		rnd = DefaultRandomSource
	}
	t := &Track{
		Kind:         kind,
		IsRemote:     false,
		Capabilities: caps,
		status:       DirectionSendRecv,
	}
	atomic.StoreUint32(&t.ssrc, rnd.SSRC())
	atomic.StoreUint32(&t.seqNum, uint32(rnd.Uint16()))
	atomic.StoreUint32(&t.timestamp, rnd.Uint32())
	return t
}

// newRemoteTrack builds a remote track with capabilities announced by the
// peer; its SSRC starts unknown (0) per spec §3.
func newRemoteTrack(kind MediaKind, caps []Codec) *Track {
	return &Track{
		Kind:         kind,
		IsRemote:     true,
		Capabilities: caps,
		status:       DirectionSendRecv,
	}
}

// SSRC returns the track's current synchronization source identifier.
func (t *Track) SSRC() uint32 { return atomic.LoadUint32(&t.ssrc) }

// setSSRC is used by remote-SSRC learning (spec §4.3); it is a one-time
// write per track, but the CAS guards against a benign race between two
// concurrent deliveries from the same channel.
func (t *Track) setSSRC(ssrc uint32) {
	atomic.CompareAndSwapUint32(&t.ssrc, 0, ssrc)
}

// SequenceNumber returns the next sequence number a send on this track will
// use (for a local track). A remote track's sequence number is not tracked
// here and reads as 0; the received-sequence count for a remote source
// lives in the RTCP engine.
func (t *Track) SequenceNumber() uint16 {
	return uint16(atomic.LoadUint32(&t.seqNum))
}

// Timestamp returns the track's current RTP timestamp.
func (t *Track) Timestamp() uint32 {
	return atomic.LoadUint32(&t.timestamp)
}

// nextSeq increments and returns the sequence number to stamp on the next
// outbound packet (wraps modulo 2^16, spec §3/§5/§8 property 2).
func (t *Track) nextSeq() uint16 {
	return uint16(atomic.AddUint32(&t.seqNum, 1) - 1)
}

// advanceTimestamp advances the track's timestamp by d samples (wraps
// modulo 2^32, spec §3/§8 property 3) and returns the timestamp value that
// was in effect for the frame just sent.
func (t *Track) advanceTimestamp(d uint32) uint32 {
	for {
		old := atomic.LoadUint32(&t.timestamp)
		if atomic.CompareAndSwapUint32(&t.timestamp, old, old+d) {
			return old
		}
	}
}

// Status returns the track's current stream-status / direction.
func (t *Track) Status() Direction { return t.status }

// SetStatus sets the track's stream-status / direction.
func (t *Track) SetStatus(d Direction) { t.status = d }

// sendingCodec returns the first (highest priority) capability, which is
// the format this track sends with (spec §3: "order implies priority").
// Returns ErrMissingSendingFormat if the track has no capabilities.
func (t *Track) sendingCodec() (Codec, error) {
	if len(t.Capabilities) == 0 {
		return Codec{}, ErrMissingSendingFormat
	}
	return t.Capabilities[0], nil
}

// hasPayloadType reports whether the track's capability list contains pt,
// used by the media-muxed demux fallback (spec §4.3).
func (t *Track) hasPayloadType(pt uint8) bool {
	for _, c := range t.Capabilities {
		if c.PayloadType == pt {
			return true
		}
	}
	return false
}
