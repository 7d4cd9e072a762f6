package rtpsession

import (
	"github.com/pion/rtp"
)

// sendFrame implements the shared per-frame send path of spec §4.5 steps
// 1-6: secure gate, DTMF-exclusion gate on the audio track (spec §8
// property 8: a frame send concurrent with an in-flight DTMF event must
// not emit RTP or disturb the event's frozen timestamp), fragmentation,
// per-fragment header fill with the correct marker-bit discipline, SRTP
// protect, transmit, and RTCP/track bookkeeping. samples is the number of
// clock-rate units this frame advances the track's timestamp by (duration
// * codec clock rate).
func (s *Session) sendFrame(kind MediaKind, frame []byte, samples uint32, frag frameFragmenter) error {
	if s.isSecure && !s.secureReady.Load() {
		return ErrSecureNotReady
	}
	if kind == KindAudio && s.rtpEventInProgress.Load() {
		return ErrDTMFInProgress
	}

	s.mu.RLock()
	track := s.localTrack(kind)
	ckey := s.channelKey(kind)
	transport := s.channels[ckey]
	dest := s.dest[kind]
	engine := s.engines[kind]
	s.mu.RUnlock()

	if track == nil {
		return ErrNoAudioTrack
	}
	if transport == nil {
		return ErrNoTransport
	}
	if dest == nil || dest.rtp == nil {
		return ErrNoDestination
	}

	codec, err := track.sendingCodec()
	if err != nil {
		return err
	}

	fragments := frag.Fragment(frame)
	ts := track.advanceTimestamp(samples)

	for i, payload := range fragments {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         kind == KindVideo && i == len(fragments)-1,
				PayloadType:    codec.PayloadType,
				SequenceNumber: track.nextSeq(),
				Timestamp:      ts,
				SSRC:           track.SSRC(),
			},
			Payload: payload,
		}
		if err := s.transmit(kind, transport, dest, pkt); err != nil {
			return err
		}
		if engine != nil {
			engine.RecordSent(pkt.SequenceNumber, pkt.Timestamp, len(pkt.Payload))
		}
	}

	if kind == KindAudio {
		s.lastSentAudioTimestamp.Store(ts + samples)
	}
	return nil
}

// transmit marshals, SRTP-protects (if ready), and sends one RTP packet.
func (s *Session) transmit(kind MediaKind, transport Transport, dest *endpoints, pkt *rtp.Packet) error {
	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}

	if sec := s.securityContext(); sec != nil && sec.ProtectRTP != nil {
		buf := make([]byte, len(raw)+SRTPMaxPrefixLength)
		copy(buf, raw)
		n, err := sec.ProtectRTP(buf, len(raw))
		if err != nil {
			return err
		}
		raw = buf[:n]
	}

	return transport.Send(SocketRTP, dest.rtp, raw)
}

// SendAudioFrame transmits one audio frame, advancing the audio track's
// timestamp by samples (spec §4.5; audio is never fragmented by a codec
// payload format, only split on the RTPMaxPayload size bound).
func (s *Session) SendAudioFrame(frame []byte, samples uint32) error {
	return s.sendFrame(KindAudio, frame, samples, audioFragmenter{})
}

// SendVP8Frame transmits one VP8 video frame, fragmenting it per RFC 7741
// via pion's VP8 payloader.
func (s *Session) SendVP8Frame(frame []byte, samples uint32) error {
	return s.sendFrame(KindVideo, frame, samples, newVP8Fragmenter())
}

// SendH264Frame transmits one H.264 access unit, fragmenting it into FU-A
// units per RFC 6184 §5.8 via pion's H.264 payloader.
func (s *Session) SendH264Frame(frame []byte, samples uint32) error {
	return s.sendFrame(KindVideo, frame, samples, newH264Fragmenter())
}

// SendJPEGFrame transmits one JPEG frame per the RFC 2435 minimal baseline
// profile SPEC_FULL.md §4.5 carries forward.
func (s *Session) SendJPEGFrame(frame []byte, samples uint32, width, height int, quality byte, qtables []byte) error {
	return s.sendFrame(KindVideo, frame, samples, newJPEGFragmenter(width, height, quality, qtables))
}
