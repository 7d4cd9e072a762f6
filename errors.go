package rtpsession

import "errors"

// Negotiation errors (spec §7) — returned, never panicked.
var (
	ErrNoLocalTracks      = errors.New("rtpsession: no local tracks to offer")
	ErrNoRemoteDescription = errors.New("rtpsession: no remote description set")
	ErrAudioIncompatible  = errors.New("rtpsession: no compatible audio format with remote description")
	ErrVideoIncompatible  = errors.New("rtpsession: no compatible video format with remote description")
)

// Invariant-violation errors — fatal to the caller of the operation named.
var (
	ErrDuplicateTrack      = errors.New("rtpsession: a track of this kind and locality already exists")
	ErrMissingSendingFormat = errors.New("rtpsession: local track has no capability to send with")
)

// Lifecycle / usage errors.
var (
	ErrSessionClosed      = errors.New("rtpsession: session is closed")
	ErrNoTransport        = errors.New("rtpsession: transport is required")
	ErrSecureNotReady     = errors.New("rtpsession: secure session context is not ready")
	ErrDTMFInProgress     = errors.New("rtpsession: a DTMF event is already in progress")
	ErrNoAudioTrack       = errors.New("rtpsession: no local audio track")
	ErrNoDestination      = errors.New("rtpsession: destination endpoint not set")
	ErrUnknownMediaKind   = errors.New("rtpsession: unknown media kind")
)
