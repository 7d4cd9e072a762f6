// Package rtpsession coordinates one or more RTP/RTCP media streams
// between two peers: SDP offer/answer negotiation, per-media sequencing and
// timestamping, RTP/RTCP demultiplexing with SRTP gating and NAT address
// learning, per-codec fragmentation, and DTMF event bursts. It is the
// "Session" component described in the package specification; the UDP
// socket layer, RTCP report-generation timers, on-wire codecs and SDP
// parser are supplied by collaborators (Transport, RTCPEngine, Transform,
// github.com/pion/sdp/v3) rather than implemented here.
package rtpsession

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog"
)

// lifecycle states, driven by a looplab/fsm instance (SPEC_FULL §4.1 —
// the teacher already uses looplab/fsm this way for SIP dialog state,
// pkg/dialog/refer_fsm.go).
const (
	lifecycleIdle   = "idle"
	lifecycleActive = "active"
	lifecycleClosed = "closed"
)

type trackKey struct {
	kind     MediaKind
	isRemote bool
}

// TransportFactory builds the Transport collaborator for a media kind (or
// for both, when media-muxed — kind is always KindAudio in that case).
type TransportFactory func(kind MediaKind) (Transport, error)

// RTCPEngineFactory builds the RTCPEngine collaborator for a media kind.
type RTCPEngineFactory func(kind MediaKind, transport Transport) (RTCPEngine, error)

// SessionConfig configures a new Session (spec §4.1).
type SessionConfig struct {
	IsMediaMuxed bool
	IsRTCPMuxed  bool
	IsSecure     bool

	LocalIP     string
	SessionName string

	NewTransport TransportFactory
	NewRTCPEngine RTCPEngineFactory

	Random RandomSource
	Logger *zerolog.Logger

	OnRTPPacketReceived func(MediaKind, *rtp.Packet)
	OnRTPEvent          func(TelephonyEvent, rtp.Header)
	OnRTCPBye           func(reason string)
	OnTimeout           func(MediaKind)
	OnReceiveReport     func(MediaKind, RTCPCompound)
	OnSendReport        func(MediaKind, RTCPCompound)
	OnClosed            func(reason error)
}

type endpoints struct {
	rtp  net.Addr
	rtcp net.Addr
}

// Session is the coordinator described by spec §3/§4: it owns tracks,
// channels, RTCP engines, negotiation state, the demultiplexer and the
// fragmentation/DTMF send paths.
type Session struct {
	log zerolog.Logger
	rnd RandomSource

	cfg SessionConfig

	mu       sync.RWMutex
	tracks   map[trackKey]*Track
	channels map[MediaKind]Transport
	engines  map[MediaKind]RTCPEngine

	remoteDescription *sdp.SessionDescription
	dest              map[MediaKind]*endpoints

	isMediaMuxed bool
	isRTCPMuxed  bool
	isSecure     bool

	secureReady atomic.Bool
	security    atomic.Pointer[SecurityContext]

	remoteDTMFPayloadType atomic.Uint32

	lastSentAudioTimestamp atomic.Uint32
	rtpEventInProgress     atomic.Bool

	lifecycleMu sync.Mutex
	lifecycle   *fsm.FSM
	closed      atomic.Bool

	onRTPPacketReceived func(MediaKind, *rtp.Packet)
	onRTPEvent          func(TelephonyEvent, rtp.Header)
	onRTCPBye           func(reason string)
	onTimeout           func(MediaKind)
	onReceiveReport     func(MediaKind, RTCPCompound)
	onSendReport        func(MediaKind, RTCPCompound)
	onClosed            func(reason error)
}

// NewSession constructs a Session that has not yet started RTCP reporting
// and carries no tracks. Call AddTrack for each local/remote stream, then
// Start.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.NewTransport == nil {
		return nil, ErrNoTransport
	}

	rnd := cfg.Random
	if rnd == nil {
		rnd = DefaultRandomSource
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	} else {
		logger = zerolog.Nop()
	}

	s := &Session{
		log:      logger.With().Str("component", "rtpsession").Logger(),
		rnd:      rnd,
		cfg:      cfg,
		tracks:   make(map[trackKey]*Track),
		channels: make(map[MediaKind]Transport),
		engines:  make(map[MediaKind]RTCPEngine),
		dest:     make(map[MediaKind]*endpoints),

		isMediaMuxed: cfg.IsMediaMuxed,
		isRTCPMuxed:  cfg.IsRTCPMuxed,
		isSecure:     cfg.IsSecure,

		onRTPPacketReceived: cfg.OnRTPPacketReceived,
		onRTPEvent:          cfg.OnRTPEvent,
		onRTCPBye:           cfg.OnRTCPBye,
		onTimeout:           cfg.OnTimeout,
		onReceiveReport:     cfg.OnReceiveReport,
		onSendReport:        cfg.OnSendReport,
		onClosed:            cfg.OnClosed,
	}
	s.remoteDTMFPayloadType.Store(DefaultDTMFPayloadType)

	s.lifecycle = fsm.NewFSM(
		lifecycleIdle,
		fsm.Events{
			{Name: "start", Src: []string{lifecycleIdle}, Dst: lifecycleActive},
			{Name: "close", Src: []string{lifecycleIdle, lifecycleActive}, Dst: lifecycleClosed},
		},
		nil,
	)

	if cfg.IsSecure {
		s.secureReady.Store(false)
	} else {
		s.secureReady.Store(true)
	}

	return s, nil
}

// channelKey maps a media kind to the key its Transport/RTCPEngine is
// stored under — audio and video collapse onto the audio key when the
// session is media-muxed (spec §4.1).
func (s *Session) channelKey(kind MediaKind) MediaKind {
	if s.isMediaMuxed {
		return KindAudio
	}
	return kind
}

// AddTrack implements spec §4.1: allocates the channel/RTCP engine for the
// track's kind if absent, rejects a duplicate same-kind same-locality
// track, and adds the track to the session.
func (s *Session) AddTrack(t *Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trackKey{kind: t.Kind, isRemote: t.IsRemote}
	if _, exists := s.tracks[key]; exists {
		return ErrDuplicateTrack
	}

	ckey := s.channelKey(t.Kind)
	if _, ok := s.channels[ckey]; !ok {
		transport, err := s.cfg.NewTransport(ckey)
		if err != nil {
			return err
		}
		s.channels[ckey] = transport
		transport.SetCallbacks(s.onTransportRTP, s.onTransportControl, s.onTransportClosed)
	}

	if _, ok := s.engines[t.Kind]; !ok && s.cfg.NewRTCPEngine != nil {
		engine, err := s.cfg.NewRTCPEngine(t.Kind, s.channels[ckey])
		if err != nil {
			return err
		}
		kind := t.Kind
		engine.SetOnReportReady(func(compound RTCPCompound) {
			s.handleReportReady(kind, compound)
		})
		engine.SetOnTimeout(func() {
			if s.onTimeout != nil {
				s.onTimeout(kind)
			}
		})
		s.engines[t.Kind] = engine
	}

	if engine, ok := s.engines[t.Kind]; ok {
		if codec, err := t.sendingCodec(); err == nil && codec.ClockRate != 0 {
			engine.SetClockRate(codec.ClockRate)
		}
		if !t.IsRemote {
			engine.SetSSRC(t.SSRC())
		}
	}

	s.tracks[key] = t
	return nil
}

// localTrack returns the session's local track of kind, or nil.
func (s *Session) localTrack(kind MediaKind) *Track {
	return s.tracks[trackKey{kind: kind, isRemote: false}]
}

// remoteTrack returns the session's remote track of kind, or nil.
func (s *Session) remoteTrack(kind MediaKind) *Track {
	return s.tracks[trackKey{kind: kind, isRemote: true}]
}

// LocalTrack returns the session's local track of kind, or nil. Thread-safe.
func (s *Session) LocalTrack(kind MediaKind) *Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localTrack(kind)
}

// RemoteTrack returns the session's remote track of kind, or nil. Thread-safe.
func (s *Session) RemoteTrack(kind MediaKind) *Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteTrack(kind)
}

// Start begins RTCP reporting on every configured engine. Transports are
// already receiving by construction (their read loop starts at creation,
// mirroring the teacher's RTPSession.Start/receiveLoop split only applying
// to RTCP timers here since the transport package owns its own loop).
func (s *Session) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if err := s.lifecycle.Event(context.Background(), "start"); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for kind, engine := range s.engines {
		if err := engine.Start(); err != nil {
			s.log.Warn().Err(err).Str("kind", kind.String()).Msg("failed to start rtcp engine")
		}
	}
	return nil
}

// Close tears down RTCP engines, closes channels, and fires onClosed(reason)
// exactly once. Idempotent and safe to call concurrently with any other
// operation (spec §5).
func (s *Session) Close(reason error) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.lifecycleMu.Lock()
	_ = s.lifecycle.Event(context.Background(), "close")
	s.lifecycleMu.Unlock()

	s.mu.Lock()
	engines := make([]RTCPEngine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	channels := make([]Transport, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, c)
	}
	s.mu.Unlock()

	for _, e := range engines {
		_ = e.Close(reason)
	}
	for _, c := range channels {
		_ = c.Close(reason)
	}

	if s.onClosed != nil {
		s.onClosed(reason)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool { return s.closed.Load() }

// SetSecurityContext installs the four SRTP/SRTCP transforms and flips
// secure_context_ready monotonically false→true (spec §3).
func (s *Session) SetSecurityContext(ctx SecurityContext) {
	s.security.Store(&ctx)
	s.secureReady.Store(true)
}

func (s *Session) securityContext() *SecurityContext {
	return s.security.Load()
}

func (s *Session) onTransportClosed(reason error) {
	s.log.Debug().Err(reason).Msg("transport closed")
}

func (s *Session) handleReportReady(kind MediaKind, compound RTCPCompound) {
	s.mu.RLock()
	ckey := s.channelKey(kind)
	transport := s.channels[ckey]
	dest := s.dest[kind]
	muxed := s.isRTCPMuxed
	s.mu.RUnlock()

	if transport == nil || dest == nil {
		return
	}

	data, err := compound.Marshal()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to marshal rtcp report")
		return
	}

	if sec := s.securityContext(); sec != nil && sec.ProtectRTCP != nil {
		buf := make([]byte, len(data)+SRTPMaxPrefixLength)
		copy(buf, data)
		n, err := sec.ProtectRTCP(buf, len(data))
		if err != nil {
			s.log.Warn().Err(err).Msg("srtcp protect failed, dropping report")
			return
		}
		data = buf[:n]
	}

	target := dest.rtcp
	socket := SocketControl
	if muxed || target == nil {
		target = dest.rtp
		socket = SocketRTP
	}
	if target == nil {
		return
	}
	if err := transport.Send(socket, target, data); err != nil {
		s.log.Warn().Err(err).Msg("failed to send rtcp report")
		return
	}

	if s.onSendReport != nil {
		s.onSendReport(kind, compound)
	}
}
