package rtpsession

import (
	"net"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/nexmedia/rtpsession/sdpneg"
)

// CreateOffer builds an SDP offer describing every local track currently
// on the session, in the teacher's own construction style (sdp.NewJSEPSessionDescription
// + WithMedia, pkg/media_with_sdp_legacy/sdp_builder.go BuildOffer), per
// spec §4.2. Returns ErrNoLocalTracks if the session has no local track at
// all. connectionAddress is optional (spec §4.2 "caller-provided; otherwise
// derived by routing-table lookup toward the current destination endpoint,
// or a platform default"); pass it or omit it entirely.
func (s *Session) CreateOffer(connectionAddress ...string) (*sdp.SessionDescription, error) {
	s.mu.RLock()
	audio := s.localTrack(KindAudio)
	video := s.localTrack(KindVideo)
	s.mu.RUnlock()

	if audio == nil && video == nil {
		return nil, ErrNoLocalTracks
	}

	addr := s.resolveConnectionAddress(firstOf(connectionAddress), s.currentDestHint())

	desc, err := s.baseSessionDescription(addr)
	if err != nil {
		return nil, err
	}

	if audio != nil {
		desc = desc.WithMedia(s.buildMediaSection(audio, addr))
	}
	if video != nil {
		desc = desc.WithMedia(s.buildMediaSection(video, addr))
	}
	return desc, nil
}

// CreateAnswer builds an SDP answer to offer: for each of its audio/video
// sections it intersects the section's codecs against the matching local
// track's capabilities (spec §4.2). A media kind present in offer but
// absent locally is still answered, with zero formats and a=inactive,
// rather than omitted — RFC 3264 §6 requires an answer to mirror every
// offered m= line. connectionAddress is optional; when omitted, the offer's
// connection address drives the local-address lookup (spec §4.2).
func (s *Session) CreateAnswer(offer *sdp.SessionDescription, connectionAddress ...string) (*sdp.SessionDescription, error) {
	if offer == nil {
		return nil, ErrNoRemoteDescription
	}

	destHint := destHintFromOffer(offer)
	if destHint == nil {
		destHint = s.currentDestHint()
	}
	addr := s.resolveConnectionAddress(firstOf(connectionAddress), destHint)

	desc, err := s.baseSessionDescription(addr)
	if err != nil {
		return nil, err
	}

	for _, media := range offer.MediaDescriptions {
		kind, ok := mediaKindFromSDP(media.MediaName.Media)
		if !ok {
			continue
		}

		s.mu.RLock()
		local := s.localTrack(kind)
		s.mu.RUnlock()

		remoteCodecs := sdpneg.ParseMediaCodecs(media)
		var answered []Codec
		if local != nil {
			answered = intersectTrackCodecs(local, remoteCodecs)
		}

		desc = desc.WithMedia(s.buildAnswerSection(kind, media, answered, addr))
	}
	return desc, nil
}

// SetRemoteDescription stores remote and adjusts local tracks' status and
// capability ordering to match the peer's offer/answer (spec §4.2
// adjustLocalTracks), per two explicit resolutions: (1) a media kind the
// peer announces with an incompatible codec set does not mutate the local
// track's capabilities or return early for *other* kinds — each media
// section is evaluated independently, only the genuinely-incompatible one
// errors; (2) a media kind announced by the peer for which this session has
// no local track of the same kind is skipped rather than dereferencing a
// nil track.
func (s *Session) SetRemoteDescription(remote *sdp.SessionDescription) error {
	if remote == nil {
		return ErrNoRemoteDescription
	}

	var audioErr, videoErr error
	for _, media := range remote.MediaDescriptions {
		kind, ok := mediaKindFromSDP(media.MediaName.Media)
		if !ok {
			continue
		}

		s.mu.Lock()
		local := s.localTrack(kind)
		if local == nil {
			s.mu.Unlock()
			continue // resolution (2): nothing to adjust for a kind we don't carry
		}

		remoteCodecs := sdpneg.ParseMediaCodecs(media)
		matched := intersectTrackCodecs(local, remoteCodecs)
		if len(matched) == 0 {
			s.mu.Unlock()
			if kind == KindAudio {
				audioErr = ErrAudioIncompatible
			} else {
				videoErr = ErrVideoIncompatible
			}
			continue // resolution (1): evaluate every section independently
		}
		local.Capabilities = matched
		local.SetStatus(reverseDirection(directionFromSDP(sdpneg.ExtractDirection(media))))

		if ep := s.deriveRemoteEndpoints(remote, media); ep != nil {
			s.dest[kind] = ep
		}

		if remoteTrack := s.remoteTrack(kind); remoteTrack != nil {
			remoteTrack.Capabilities = sdpneg.ParseMediaCodecs(media)
			remoteTrack.SetStatus(directionFromSDP(sdpneg.ExtractDirection(media)))
		} else {
			rt := newRemoteTrack(kind, sdpneg.ParseMediaCodecs(media))
			rt.SetStatus(directionFromSDP(sdpneg.ExtractDirection(media)))
			s.tracks[trackKey{kind: kind, isRemote: true}] = rt
		}
		if mid, ok := sdpneg.ExtractMID(media); ok {
			s.remoteTrack(kind).MediaID = mid
		}

		if pt, ok := sdpneg.FindTelephoneEventPayloadType(media); ok {
			s.remoteDTMFPayloadType.Store(uint32(pt))
		}

		s.mu.Unlock()
	}

	s.mu.Lock()
	s.remoteDescription = remote
	s.mu.Unlock()

	if audioErr != nil {
		return audioErr
	}
	return videoErr
}

// intersectTrackCodecs adapts the root Codec type to sdpneg.Codec for
// Intersect, without exporting sdpneg's type across the package boundary.
func intersectTrackCodecs(local *Track, remote []Codec) []Codec {
	localSDP := make([]sdpneg.Codec, len(local.Capabilities))
	for i, c := range local.Capabilities {
		localSDP[i] = sdpneg.Codec(c)
	}
	remoteSDP := make([]sdpneg.Codec, len(remote))
	for i, c := range remote {
		remoteSDP[i] = sdpneg.Codec(c)
	}
	matched := sdpneg.Intersect(localSDP, remoteSDP)
	out := make([]Codec, len(matched))
	for i, c := range matched {
		out[i] = Codec(c)
	}
	return out
}

func mediaKindFromSDP(media string) (MediaKind, bool) {
	switch media {
	case "audio":
		return KindAudio, true
	case "video":
		return KindVideo, true
	default:
		return 0, false
	}
}

// reverseDirection maps the peer's announced direction to the direction
// this side should adopt (sendonly <-> recvonly; sendrecv/inactive unchanged).
func reverseDirection(d Direction) Direction {
	switch d {
	case DirectionSendOnly:
		return DirectionRecvOnly
	case DirectionRecvOnly:
		return DirectionSendOnly
	default:
		return d
	}
}

func (s *Session) baseSessionDescription(localAddr string) (*sdp.SessionDescription, error) {
	desc, err := sdp.NewJSEPSessionDescription(false)
	if err != nil {
		return nil, err
	}
	now := uint64(sessionVersion())
	desc.Origin = sdp.Origin{
		Username:       "-",
		SessionID:      now,
		SessionVersion: now,
		NetworkType:    "IN",
		AddressType:    "IP4",
		UnicastAddress: localAddr,
	}
	name := s.cfg.SessionName
	if name == "" {
		name = "-"
	}
	desc.SessionName = sdp.SessionName(name)
	desc.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: localAddr},
	}
	desc.TimeDescriptions = []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}}
	return desc, nil
}

func (s *Session) buildMediaSection(t *Track, localAddr string) *sdp.MediaDescription {
	formats := make([]string, 0, len(t.Capabilities)+1)
	media := sdp.NewJSEPMediaDescription(t.Kind.String(), []string{})

	for _, c := range t.Capabilities {
		formats = append(formats, strconv.Itoa(int(c.PayloadType)))
		media = media.WithCodec(c.PayloadType, c.Name, c.ClockRate, uint16(c.Channels), c.FormatParams)
	}

	if t.Kind == KindAudio {
		dtmfPT := uint8(s.remoteDTMFPayloadType.Load())
		formats = append(formats, strconv.Itoa(int(dtmfPT)))
		media = media.WithValueAttribute("rtpmap", strconv.Itoa(int(dtmfPT))+" telephone-event/8000")
		media = media.WithValueAttribute("fmtp", strconv.Itoa(int(dtmfPT))+" 0-15")
	}

	port := 0
	if len(t.Capabilities) > 0 {
		port = s.rtpPort(t.Kind)
	}

	media.MediaName = sdp.MediaName{
		Media:   t.Kind.String(),
		Port:    sdp.RangedPort{Value: port},
		Protos:  []string{"RTP", "AVP"},
		Formats: formats,
	}
	media.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: localAddr},
	}
	media = media.WithPropertyAttribute(t.Status().String())
	mid := t.MediaID
	if mid == "" {
		mid = t.Kind.String()
	}
	media = media.WithValueAttribute("mid", mid)
	return media
}

func (s *Session) buildAnswerSection(kind MediaKind, offered *sdp.MediaDescription, answered []Codec, localAddr string) *sdp.MediaDescription {
	formats := make([]string, 0, len(answered))
	media := sdp.NewJSEPMediaDescription(kind.String(), []string{})
	for _, c := range answered {
		formats = append(formats, strconv.Itoa(int(c.PayloadType)))
		media = media.WithCodec(c.PayloadType, c.Name, c.ClockRate, uint16(c.Channels), c.FormatParams)
	}

	direction := "inactive"
	port := 0
	if len(answered) > 0 {
		offeredDir := directionFromSDP(sdpneg.ExtractDirection(offered))
		direction = reverseDirection(offeredDir).String()
		port = s.rtpPort(kind)
	}

	media.MediaName = sdp.MediaName{
		Media:   kind.String(),
		Port:    sdp.RangedPort{Value: port},
		Protos:  offered.MediaName.Protos,
		Formats: formats,
	}
	media.ConnectionInformation = &sdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &sdp.Address{Address: localAddr},
	}
	media = media.WithPropertyAttribute(direction)
	if mid, ok := sdpneg.ExtractMID(offered); ok {
		media = media.WithValueAttribute("mid", mid)
	}
	return media
}

// firstOf returns the first element of an optional variadic argument list,
// or "" if none was supplied.
func firstOf(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// currentDestHint returns any already-known remote RTP endpoint, for
// routing-table-style local-address resolution on a re-offer.
func (s *Session) currentDestHint() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kind := range [...]MediaKind{KindAudio, KindVideo} {
		if e, ok := s.dest[kind]; ok && e.rtp != nil {
			return e.rtp
		}
	}
	return nil
}

// destHintFromOffer resolves a destination address from the offer's first
// media section (or session-level connection line) carrying a usable
// address/port, for CreateAnswer's local-address lookup.
func destHintFromOffer(offer *sdp.SessionDescription) net.Addr {
	for _, media := range offer.MediaDescriptions {
		address := sdpneg.ConnectionAddress(offer, media)
		port := media.MediaName.Port.Value
		if address == "" || port <= 0 {
			continue
		}
		if addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(address, strconv.Itoa(port))); err == nil {
			return addr
		}
	}
	return nil
}

// resolveConnectionAddress implements spec §4.2's connection-address rule:
// an explicit override wins (unless it is an unspecified "no hint" address);
// otherwise it dials toward destHint to learn the local routable address via
// the OS routing table, falling back to the session's configured address.
func (s *Session) resolveConnectionAddress(override string, destHint net.Addr) string {
	if override != "" && !isUnspecifiedAddress(override) {
		return override
	}
	if destHint != nil {
		if conn, err := net.Dial("udp", destHint.String()); err == nil {
			defer conn.Close()
			if local, ok := conn.LocalAddr().(*net.UDPAddr); ok && local.IP != nil && !local.IP.IsUnspecified() {
				return local.IP.String()
			}
		}
	}
	return s.cfg.LocalIP
}

func isUnspecifiedAddress(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsUnspecified()
}

// deriveRemoteEndpoints computes the remote RTP/RTCP destination from a
// negotiated media section's connection address and port (spec §4.2): the
// control endpoint is port+1 unless RTCP is muxed, in which case it shares
// the RTP port. Returns nil when the section carries no usable address or
// port, so the caller can leave any address-learned endpoint untouched
// rather than clobbering it with an unresolved one.
func (s *Session) deriveRemoteEndpoints(remote *sdp.SessionDescription, media *sdp.MediaDescription) *endpoints {
	address := sdpneg.ConnectionAddress(remote, media)
	port := media.MediaName.Port.Value
	if address == "" || port <= 0 {
		return nil
	}

	rtpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil
	}

	rtcpPort := port
	if !s.isRTCPMuxed {
		rtcpPort = port + 1
	}
	rtcpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(address, strconv.Itoa(rtcpPort)))
	if err != nil {
		return nil
	}

	return &endpoints{rtp: rtpAddr, rtcp: rtcpAddr}
}

func (s *Session) rtpPort(kind MediaKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ckey := s.channelKey(kind)
	if t, ok := s.channels[ckey]; ok {
		return t.RTPPort()
	}
	return 0
}

// sessionVersion yields a monotonically-increasing o= session id/version,
// grounded in the teacher's own NewSDPBuilder (time.Now().Unix()); callers
// must not invoke CreateOffer/CreateAnswer from deterministic tests that
// need a fixed value more than once per wall-clock second apart, which the
// teacher's same implementation shares.
func sessionVersion() int64 {
	return time.Now().Unix()
}
