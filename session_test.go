package rtpsession

import (
	"net"
	"time"

	"github.com/pion/rtp"
)

// fakeTransport is an in-memory Transport stand-in, avoiding real sockets
// in unit tests per the teacher's own mockTransport pattern
// (pkg/dialog/mockTransport).
type fakeTransport struct {
	port int
	sent []fakeSend

	onRTP     func(local, remote net.Addr, data []byte)
	onControl func(local, remote net.Addr, data []byte)
	onClosed  func(reason error)
}

type fakeSend struct {
	kind SocketKind
	dest net.Addr
	data []byte
}

func newFakeTransport(port int) *fakeTransport {
	return &fakeTransport{port: port}
}

func (f *fakeTransport) Send(kind SocketKind, dest net.Addr, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	f.sent = append(f.sent, fakeSend{kind: kind, dest: dest, data: buf})
	return nil
}

func (f *fakeTransport) RTPPort() int { return f.port }

func (f *fakeTransport) SetCallbacks(onRTP, onControl func(local, remote net.Addr, data []byte), onClosed func(reason error)) {
	f.onRTP = onRTP
	f.onControl = onControl
	f.onClosed = onClosed
}

func (f *fakeTransport) Close(reason error) error { return nil }

// fakeEngine is a no-op RTCPEngine stand-in; tests that care about report
// generation call its callback directly instead of waiting on a timer.
type fakeEngine struct {
	ssrc         uint32
	sentCount    int
	received     []uint32
	onReportFn   func(RTCPCompound)
	onTimeoutFn  func()
	lastActivity time.Time
}

func (e *fakeEngine) Start() error           { return nil }
func (e *fakeEngine) Close(reason error) error { return nil }
func (e *fakeEngine) SetSSRC(ssrc uint32)    { e.ssrc = ssrc }
func (e *fakeEngine) SetClockRate(clockRate uint32) {}
func (e *fakeEngine) LastActivityAt() time.Time { return e.lastActivity }
func (e *fakeEngine) RecordSent(seqNum uint16, rtpTimestamp uint32, payloadOctets int) {
	e.sentCount++
}
func (e *fakeEngine) RecordReceived(pkt *rtp.Packet) {
	e.received = append(e.received, pkt.SSRC)
}
func (e *fakeEngine) HandleCompound(compound RTCPCompound) {}
func (e *fakeEngine) SetOnReportReady(f func(RTCPCompound)) { e.onReportFn = f }
func (e *fakeEngine) SetOnTimeout(f func())                 { e.onTimeoutFn = f }

func udpAddr(t string) net.Addr {
	a, _ := net.ResolveUDPAddr("udp", t)
	return a
}
