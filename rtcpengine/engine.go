// Package rtcpengine implements the rtpsession.RTCPEngine collaborator: a
// per-media reporting loop that periodically assembles and hands off a
// compound SR/RR report, folds received RTP/RTCP activity into per-SSRC
// statistics, and detects remote silence — grounded in the teacher's
// RTCPSession (pkg/rtp/rtcp_session.go), with the wire types replaced by
// github.com/pion/rtcp instead of the teacher's hand-rolled codec.
package rtcpengine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/nexmedia/rtpsession"
)

const (
	defaultInterval    = 5 * time.Second
	sourceTimeout      = 30 * time.Second
	remoteSilenceLimit = 3 * defaultInterval
)

type sourceStats struct {
	baseSeq        uint16
	lastSeq        uint16
	cycles         uint16
	packetsLost    uint32
	fractionLost   uint8
	packetsReceived uint32
	jitter         uint32
	transitTime    int64
	lastSRNTP      uint64
	lastSRAt       time.Time
	lastActivity   time.Time
}

// Engine is a concrete rtpsession.RTCPEngine.
type Engine struct {
	log zerolog.Logger

	ssrc      atomic.Uint32
	clockRate atomic.Uint32

	mu            sync.Mutex
	stats         map[uint32]*sourceStats
	packetsSent   uint32
	octetsSent    uint32
	lastRTPTime   uint32
	lastActivity  time.Time

	onReportReady func(rtpsession.RTCPCompound)
	onTimeout     func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Bool

	metrics *Metrics

	// cname is this engine's RTCP SDES CNAME, generated once per instance
	// rather than derived from user@host (RFC 3550 §6.5.1 allows any
	// persistent-per-source opaque identifier).
	cname string
}

// New builds an Engine. The caller installs SetOnReportReady/SetOnTimeout
// before calling Start (spec §4.1 AddTrack wiring order). metrics may be
// nil to run without Prometheus export.
func New(logger *zerolog.Logger, metrics *Metrics) *Engine {
	var l zerolog.Logger
	if logger != nil {
		l = *logger
	} else {
		l = zerolog.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		log:     l.With().Str("component", "rtcpengine").Logger(),
		stats:   make(map[uint32]*sourceStats),
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics,
		cname:   uuid.NewString(),
	}
	e.clockRate.Store(rtpsession.DefaultAudioClockRate)
	return e
}

// SetSSRC implements rtpsession.RTCPEngine.
func (e *Engine) SetSSRC(ssrc uint32) { e.ssrc.Store(ssrc) }

// SetClockRate implements rtpsession.RTCPEngine.
func (e *Engine) SetClockRate(clockRate uint32) {
	if clockRate != 0 {
		e.clockRate.Store(clockRate)
	}
}

// SetOnReportReady implements rtpsession.RTCPEngine.
func (e *Engine) SetOnReportReady(f func(rtpsession.RTCPCompound)) {
	e.mu.Lock()
	e.onReportReady = f
	e.mu.Unlock()
}

// SetOnTimeout implements rtpsession.RTCPEngine.
func (e *Engine) SetOnTimeout(f func()) {
	e.mu.Lock()
	e.onTimeout = f
	e.mu.Unlock()
}

// Start begins the fixed-interval send loop and the silence-watchdog loop.
func (e *Engine) Start() error {
	if !e.active.CompareAndSwap(false, true) {
		return nil
	}
	e.wg.Add(2)
	go e.sendLoop()
	go e.watchdogLoop()
	return nil
}

// Close implements rtpsession.RTCPEngine.
func (e *Engine) Close(reason error) error {
	if !e.active.CompareAndSwap(true, false) {
		return nil
	}
	e.cancel()
	e.wg.Wait()
	return nil
}

// LastActivityAt implements rtpsession.RTCPEngine.
func (e *Engine) LastActivityAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivity
}

// RecordSent implements rtpsession.RTCPEngine.
func (e *Engine) RecordSent(seqNum uint16, rtpTimestamp uint32, payloadOctets int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.packetsSent++
	e.octetsSent += uint32(payloadOctets)
	e.lastRTPTime = rtpTimestamp
	e.lastActivity = time.Now()
}

// RecordReceived implements rtpsession.RTCPEngine, folding a received RTP
// packet into its source's statistics per RFC 3550 §A.8 (jitter) and
// §A.3 (loss), grounded in the teacher's UpdateStatistics.
func (e *Engine) RecordReceived(pkt *rtp.Packet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	e.lastActivity = now

	s, ok := e.stats[pkt.SSRC]
	if !ok {
		s = &sourceStats{baseSeq: pkt.SequenceNumber, lastSeq: pkt.SequenceNumber, lastActivity: now}
		e.stats[pkt.SSRC] = s
		return
	}

	oldSeq := s.lastSeq
	if pkt.SequenceNumber < oldSeq && oldSeq-pkt.SequenceNumber > 32768 {
		s.cycles++
	}
	s.lastSeq = pkt.SequenceNumber

	// RFC 3550 §A.8: transit must be computed in the RTP timestamp's own
	// units, not mixed with a wall-clock millisecond count — convert the
	// arrival time to the source's clock rate before subtracting.
	arrivalRTPUnits := int64(float64(now.UnixNano()) / 1e9 * float64(e.clockRate.Load()))
	transit := arrivalRTPUnits - int64(pkt.Timestamp)
	if s.transitTime != 0 {
		d := transit - s.transitTime
		if d < 0 {
			d = -d
		}
		s.jitter += uint32((d - int64(s.jitter)) / 16)
	}
	s.transitTime = transit

	expected := uint16(pkt.SequenceNumber - oldSeq)
	if expected > 1 {
		lost := uint32(expected - 1)
		s.packetsLost += lost
		s.fractionLost = uint8((lost * 256) / uint32(expected))
		if e.metrics != nil {
			e.metrics.packetsLost.Add(float64(lost))
		}
	} else {
		s.fractionLost = 0
	}
	s.packetsReceived++
	s.lastActivity = now

	if e.metrics != nil {
		e.metrics.packetsReceived.Inc()
		e.metrics.jitter.Set(float64(s.jitter))
	}
}

// HandleCompound implements rtpsession.RTCPEngine: folds SR timing
// information from the peer into the matching source's stats so this
// engine can compute DLSR in its own next report.
func (e *Engine) HandleCompound(compound rtpsession.RTCPCompound) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	e.lastActivity = now

	for _, pkt := range compound {
		sr, ok := pkt.(*rtcp.SenderReport)
		if !ok {
			continue
		}
		s, exists := e.stats[sr.SSRC]
		if !exists {
			s = &sourceStats{lastActivity: now}
			e.stats[sr.SSRC] = s
		}
		s.lastSRNTP = sr.NTPTime
		s.lastSRAt = now
		s.lastActivity = now
	}
}

func (e *Engine) sendLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(defaultInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sendReport()
		}
	}
}

func (e *Engine) watchdogLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(defaultInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			last := e.lastActivity
			onTimeout := e.onTimeout
			e.mu.Unlock()
			if !last.IsZero() && time.Since(last) > remoteSilenceLimit && onTimeout != nil {
				if e.metrics != nil {
					e.metrics.timeouts.Inc()
				}
				onTimeout()
			}
		}
	}
}

// sendReport assembles one compound report: an SR if this engine has sent
// RTP, otherwise an RR, carrying a reception-report block per source active
// within sourceTimeout, followed by an SDES CNAME chunk, mirroring the
// teacher's sendRTCPReports/hasSentPackets selection rule.
func (e *Engine) sendReport() {
	e.mu.Lock()
	ssrc := e.ssrc.Load()
	reports := e.receptionReports()
	hasSent := e.packetsSent > 0

	var compound rtpsession.RTCPCompound
	if hasSent {
		compound = rtpsession.RTCPCompound{&rtcp.SenderReport{
			SSRC:        ssrc,
			NTPTime:     ntpNow(),
			RTPTime:     e.lastRTPTime,
			PacketCount: e.packetsSent,
			OctetCount:  e.octetsSent,
			Reports:     reports,
		}}
	} else {
		compound = rtpsession.RTCPCompound{&rtcp.ReceiverReport{
			SSRC:    ssrc,
			Reports: reports,
		}}
	}
	compound = append(compound, &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{{
			Source: ssrc,
			Items: []rtcp.SourceDescriptionItem{{
				Type: rtcp.SDESCNAME,
				Text: e.cname,
			}},
		}},
	})
	onReady := e.onReportReady
	e.mu.Unlock()

	if onReady != nil {
		onReady(compound)
	}
	if e.metrics != nil {
		e.metrics.reportsSent.Inc()
	}
}

func (e *Engine) receptionReports() []rtcp.ReceptionReport {
	var out []rtcp.ReceptionReport
	for ssrc, s := range e.stats {
		if time.Since(s.lastActivity) > sourceTimeout {
			continue
		}
		var dlsr uint32
		if !s.lastSRAt.IsZero() {
			dlsr = uint32(time.Since(s.lastSRAt).Seconds() * 65536)
		}
		out = append(out, rtcp.ReceptionReport{
			SSRC:               ssrc,
			FractionLost:       s.fractionLost,
			TotalLost:          s.packetsLost,
			LastSequenceNumber: uint32(s.cycles)<<16 | uint32(s.lastSeq),
			Jitter:             s.jitter,
			LastSenderReport:   uint32(s.lastSRNTP >> 16),
			Delay:              dlsr,
		})
	}
	return out
}

// ntpNow returns the current time as an RFC 3550 §4 64-bit NTP timestamp.
func ntpNow() uint64 {
	const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970
	now := time.Now()
	sec := uint64(now.Unix()) + ntpEpochOffset
	frac := uint64(now.Nanosecond()) * (1 << 32) / 1e9
	return sec<<32 | frac
}
