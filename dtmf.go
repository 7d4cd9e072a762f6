package rtpsession

import (
	"context"
	"time"

	"github.com/pion/rtp"
)

// SendDTMFEvent transmits one RFC 4733 telephone-event burst for digit on
// the audio track: dtmfDuplicateCount start packets (marker set on the
// first), a run of continuation packets spaced rtpEventSamplePeriod apart
// for duration, then dtmfDuplicateCount end-of-event packets — all sharing
// one frozen RTP timestamp, per spec §4.6 and the teacher's DTMFSender
// (pkg/media_legacy/dtmf.go GeneratePackets). Only one event may be
// in-flight per session (ErrDTMFInProgress); cancel it early by cancelling
// ctx.
func (s *Session) SendDTMFEvent(ctx context.Context, digit uint8, volume uint8, duration time.Duration) error {
	if !s.rtpEventInProgress.CompareAndSwap(false, true) {
		return ErrDTMFInProgress
	}
	defer s.rtpEventInProgress.Store(false)

	if s.isSecure && !s.secureReady.Load() {
		return ErrSecureNotReady
	}

	s.mu.RLock()
	track := s.localTrack(KindAudio)
	ckey := s.channelKey(KindAudio)
	transport := s.channels[ckey]
	dest := s.dest[KindAudio]
	engine := s.engines[KindAudio]
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

	// The negotiated telephone-event payload type lives on the session
	// (spec §3 remote_dtmf_payload_id), not on the local track's
	// Capabilities — AddTrack-registered local tracks never carry a
	// telephone-event entry, only the peer's announced one does.
	pt := uint8(s.remoteDTMFPayloadType.Load())

	clockRate := DefaultAudioClockRate
	if codec, err := track.sendingCodec(); err == nil && codec.ClockRate != 0 {
		clockRate = int(codec.ClockRate)
	}
	durationSamples := uint32(duration.Seconds() * float64(clockRate))

	// The timestamp is frozen for the whole event: RFC 4733 §2.5.2.1.
	frozenTS := track.advanceTimestamp(durationSamples)

	send := func(ev TelephonyEvent, marker bool) error {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         marker,
				PayloadType:    pt,
				SequenceNumber: track.nextSeq(),
				Timestamp:      frozenTS,
				SSRC:           track.SSRC(),
			},
			Payload: encodeTelephonyEvent(ev),
		}
		if err := s.transmit(KindAudio, transport, dest, pkt); err != nil {
			return err
		}
		if engine != nil {
			engine.RecordSent(pkt.SequenceNumber, pkt.Timestamp, len(pkt.Payload))
		}
		return nil
	}

	step := uint16(rtpEventSamplePeriod.Seconds() * float64(clockRate))
	for i := 0; i < dtmfDuplicateCount; i++ {
		if err := send(TelephonyEvent{Event: digit, Volume: volume, Duration: step}, i == 0); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(rtpEventSamplePeriod)
	defer ticker.Stop()

	elapsed := rtpEventSamplePeriod
	for elapsed < duration {
		select {
		case <-ctx.Done():
			// spec §4.6 step 5 / §5 Concurrency: a cancel mid-burst exits
			// without emitting further packets, including end-of-event.
			return nil
		case <-ticker.C:
			samples := uint16(elapsed.Seconds() * float64(clockRate))
			if err := send(TelephonyEvent{Event: digit, Volume: volume, Duration: samples}, false); err != nil {
				return err
			}
			elapsed += rtpEventSamplePeriod
		}
	}

	return s.sendDTMFEnd(send, digit, volume, uint16(durationSamples))
}

func (s *Session) sendDTMFEnd(send func(TelephonyEvent, bool) error, digit, volume uint8, samples uint16) error {
	for i := 0; i < dtmfDuplicateCount; i++ {
		if err := send(TelephonyEvent{Event: digit, EndOfEvent: true, Volume: volume, Duration: samples}, false); err != nil {
			return err
		}
	}
	return nil
}
