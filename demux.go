package rtpsession

import (
	"net"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// isRTCPDatagram classifies a received datagram by its second byte, per
// RFC 3550 §5.1/§6.1 and the teacher's own IsRTCPPacket (pkg/rtp/rtcp.go):
// version 2 and a packet-type byte in the SR..APP range (200-204) is RTCP,
// anything else on the same socket is RTP (spec §4.3 step 3).
func isRTCPDatagram(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	version := (data[0] >> 6) & 0x03
	packetType := data[1]
	return version == 2 && packetType >= rtcpSRPacketType && packetType <= 204
}

// onTransportRTP is the Transport RTP-socket callback (spec §4.3): it gates
// on secure-context readiness, unprotects, classifies, and either routes to
// the RTCP path (when a compound RTCP datagram lands on the RTP socket, as
// it does under RTCP-mux) or parses and dispatches an RTP packet.
func (s *Session) onTransportRTP(local, remote net.Addr, data []byte) {
	if s.isSecure && !s.secureReady.Load() {
		return
	}

	if sec := s.securityContext(); sec != nil {
		if isRTCPDatagram(data) {
			if sec.UnprotectRTCP != nil {
				n, err := sec.UnprotectRTCP(data, len(data))
				if err != nil {
					s.log.Debug().Err(err).Msg("srtcp unprotect failed, dropping")
					return
				}
				data = data[:n]
			}
		} else if sec.UnprotectRTP != nil {
			n, err := sec.UnprotectRTP(data, len(data))
			if err != nil {
				s.log.Debug().Err(err).Msg("srtp unprotect failed, dropping")
				return
			}
			data = data[:n]
		}
	}

	if isRTCPDatagram(data) {
		s.dispatchRTCP(remote, data)
		return
	}
	s.dispatchRTP(local, remote, data)
}

// onTransportControl is the Transport control-socket callback, used when
// RTCP travels on its own socket rather than muxed onto the RTP one.
func (s *Session) onTransportControl(local, remote net.Addr, data []byte) {
	if s.isSecure && !s.secureReady.Load() {
		return
	}
	if sec := s.securityContext(); sec != nil && sec.UnprotectRTCP != nil {
		n, err := sec.UnprotectRTCP(data, len(data))
		if err != nil {
			s.log.Debug().Err(err).Msg("srtcp unprotect failed, dropping")
			return
		}
		data = data[:n]
	}
	s.dispatchRTCP(remote, data)
}

// dispatchRTP parses an already-unprotected RTP datagram, resolves which
// media kind it belongs to, learns the remote SSRC/address, and fires the
// received-packet callback (or decodes it as a DTMF event), per spec §4.3.
func (s *Session) dispatchRTP(local, remote net.Addr, data []byte) {
	if len(data) < minRTPHeaderLength {
		return
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		s.log.Debug().Err(err).Msg("malformed rtp packet, dropping")
		return
	}

	kind, ok := s.resolveIncomingKind(pkt.PayloadType, local)
	if !ok {
		return
	}

	s.learnRemote(kind, remote, false)

	s.mu.RLock()
	remoteTrack := s.remoteTrack(kind)
	engine := s.engines[kind]
	s.mu.RUnlock()

	if remoteTrack != nil {
		remoteTrack.setSSRC(pkt.SSRC)
	}
	if engine != nil {
		engine.RecordReceived(pkt)
	}

	if pkt.PayloadType == uint8(s.remoteDTMFPayloadType.Load()) {
		if ev, ok := decodeTelephonyEvent(pkt.Payload); ok {
			if s.onRTPEvent != nil {
				s.onRTPEvent(ev, pkt.Header)
			}
			return
		}
	}

	if s.onRTPPacketReceived != nil {
		s.onRTPPacketReceived(kind, pkt)
	}
}

// resolveIncomingKind maps an inbound RTP payload type to a media kind
// (spec §4.3): when the session is not media-muxed, the kind is determined
// by matching local_endpoint.port to the kind's channel RTP port; when
// media-muxed it matches the payload type against each remote track's
// capability list instead, since both kinds share one socket.
func (s *Session) resolveIncomingKind(pt uint8, local net.Addr) (MediaKind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isMediaMuxed {
		if udpAddr, ok := local.(*net.UDPAddr); ok {
			for kind, transport := range s.channels {
				if transport.RTPPort() == udpAddr.Port {
					return kind, true
				}
			}
		}
		// local didn't resolve to a concrete UDP port (e.g. an in-memory
		// test transport); fall back to the sole registered kind.
		for k := range s.tracks {
			return k.kind, true
		}
		return KindAudio, true
	}

	for key, t := range s.tracks {
		if key.isRemote && (t.hasPayloadType(pt) || pt == uint8(s.remoteDTMFPayloadType.Load())) {
			return key.kind, true
		}
	}
	if _, ok := s.tracks[trackKey{kind: KindAudio, isRemote: true}]; ok || pt == uint8(s.remoteDTMFPayloadType.Load()) {
		return KindAudio, true
	}
	return KindVideo, true
}

// dispatchRTCP parses an already-unprotected compound RTCP datagram,
// matches it to the owning engine by its known SSRC-to-kind mapping (spec
// §4.4), detects BYE, and learns the remote control address.
func (s *Session) dispatchRTCP(remote net.Addr, data []byte) {
	compound, err := unmarshalRTCPCompound(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("malformed rtcp compound, dropping")
		return
	}

	kind, ok := s.resolveRTCPKind(compound)
	if !ok {
		return
	}

	s.learnRemote(kind, remote, true)

	s.mu.RLock()
	engine := s.engines[kind]
	s.mu.RUnlock()
	if engine != nil {
		engine.HandleCompound(compound)
	}

	for _, pkt := range compound {
		if bye, ok := pkt.(*rtcp.Goodbye); ok {
			if s.onRTCPBye != nil {
				s.onRTCPBye(byeReason(bye))
			}
		}
	}

	if s.onReceiveReport != nil {
		s.onReceiveReport(kind, compound)
	}
}

// resolveRTCPKind matches an incoming compound RTCP packet to the media
// kind whose remote track carries a matching SSRC (spec §4.4); falls back
// to the sole configured kind in a non-muxed, single-engine deployment.
func (s *Session) resolveRTCPKind(compound RTCPCompound) (MediaKind, bool) {
	ssrcs := make(map[uint32]struct{})
	for _, pkt := range compound {
		switch p := pkt.(type) {
		case *rtcp.SenderReport:
			ssrcs[p.SSRC] = struct{}{}
		case *rtcp.ReceiverReport:
			ssrcs[p.SSRC] = struct{}{}
			for _, rr := range p.Reports {
				ssrcs[rr.SSRC] = struct{}{}
			}
		case *rtcp.SourceDescription:
			for _, chunk := range p.Chunks {
				ssrcs[chunk.Source] = struct{}{}
			}
		case *rtcp.Goodbye:
			for _, src := range p.Sources {
				ssrcs[src] = struct{}{}
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, t := range s.tracks {
		if key.isRemote {
			if _, found := ssrcs[t.SSRC()]; found {
				return key.kind, true
			}
		}
	}
	if !s.isMediaMuxed && len(s.engines) == 1 {
		for k := range s.engines {
			return k, true
		}
	}
	return KindAudio, false
}

// learnRemote records the NAT-learned remote endpoint for a media kind's
// RTP or RTCP plane on first (or changed) observation, per spec §4.3's
// address-learning rule — idempotent once the address stabilizes.
func (s *Session) learnRemote(kind MediaKind, remote net.Addr, isControl bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.dest[kind]
	if !ok {
		e = &endpoints{}
		s.dest[kind] = e
	}
	if isControl {
		e.rtcp = remote
	} else {
		e.rtp = remote
	}
}

func byeReason(bye *rtcp.Goodbye) string {
	if bye.Reason != "" {
		return bye.Reason
	}
	return "bye"
}
