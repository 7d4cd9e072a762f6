// Package transport implements the rtpsession.Transport collaborator over
// UDP sockets, grounded in the teacher's own UDPTransport
// (pkg/rtp/transport_udp.go): ListenUDP for the local socket, an
// always-running read loop, and first-packet remote-address learning —
// adapted here to the callback-dispatch shape the Session's demultiplexer
// expects instead of a pull-style Receive(ctx).
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexmedia/rtpsession"
)

const defaultBufferSize = 1500

// UDPChannel is a concrete rtpsession.Transport: one UDP socket for RTP,
// and optionally a second for RTCP when the session is not RTCP-muxed.
type UDPChannel struct {
	log zerolog.Logger

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	mu        sync.RWMutex
	onRTP     func(local, remote net.Addr, data []byte)
	onControl func(local, remote net.Addr, data []byte)
	onClosed  func(reason error)

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Config describes the local bind addresses for a UDPChannel.
type Config struct {
	// LocalRTPAddr is the "ip:port" (or "ip:0" for ephemeral) to bind the
	// RTP socket to.
	LocalRTPAddr string

	// LocalRTCPAddr binds a second, independent control socket. Leave
	// empty when RTCP is multiplexed onto the RTP socket.
	LocalRTCPAddr string

	Logger *zerolog.Logger
}

// NewUDPChannel opens the RTP socket (and the RTCP socket, if configured)
// and starts their read loops immediately — mirroring the teacher's
// NewUDPTransport, which returns an already-listening transport.
func NewUDPChannel(cfg Config) (*UDPChannel, error) {
	rtpAddr, err := net.ResolveUDPAddr("udp", cfg.LocalRTPAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve rtp addr: %w", err)
	}
	rtpConn, err := net.ListenUDP("udp", rtpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen rtp: %w", err)
	}

	var rtcpConn *net.UDPConn
	if cfg.LocalRTCPAddr != "" {
		rtcpAddr, err := net.ResolveUDPAddr("udp", cfg.LocalRTCPAddr)
		if err != nil {
			rtpConn.Close()
			return nil, fmt.Errorf("transport: resolve rtcp addr: %w", err)
		}
		rtcpConn, err = net.ListenUDP("udp", rtcpAddr)
		if err != nil {
			rtpConn.Close()
			return nil, fmt.Errorf("transport: listen rtcp: %w", err)
		}
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	} else {
		logger = zerolog.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &UDPChannel{
		log:      logger.With().Str("component", "transport.udp").Logger(),
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		ctx:      ctx,
		cancel:   cancel,
	}

	go c.readLoop(rtpConn, false)
	if rtcpConn != nil {
		go c.readLoop(rtcpConn, true)
	}
	return c, nil
}

func (c *UDPChannel) readLoop(conn *net.UDPConn, isControl bool) {
	buf := make([]byte, defaultBufferSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			c.log.Debug().Err(err).Bool("control", isControl).Msg("udp read error")
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		c.mu.RLock()
		onRTP, onControl := c.onRTP, c.onControl
		c.mu.RUnlock()

		if isControl {
			if onControl != nil {
				onControl(conn.LocalAddr(), remote, data)
			}
		} else if onRTP != nil {
			onRTP(conn.LocalAddr(), remote, data)
		}
	}
}

// Send implements rtpsession.Transport.
func (c *UDPChannel) Send(kind rtpsession.SocketKind, dest net.Addr, data []byte) error {
	udpDest, ok := dest.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("transport: destination is not a UDP address")
	}

	conn := c.rtpConn
	if kind == rtpsession.SocketControl && c.rtcpConn != nil {
		conn = c.rtcpConn
	}
	_, err := conn.WriteToUDP(data, udpDest)
	return err
}

// RTPPort implements rtpsession.Transport.
func (c *UDPChannel) RTPPort() int {
	if addr, ok := c.rtpConn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// SetCallbacks implements rtpsession.Transport.
func (c *UDPChannel) SetCallbacks(onRTP, onControl func(local, remote net.Addr, data []byte), onClosed func(reason error)) {
	c.mu.Lock()
	c.onRTP = onRTP
	c.onControl = onControl
	c.onClosed = onClosed
	c.mu.Unlock()
}

// IsMuxed reports whether this channel carries RTCP on the RTP socket.
func (c *UDPChannel) IsMuxed() bool {
	return c.rtcpConn == nil
}

// Close implements rtpsession.Transport. Idempotent.
func (c *UDPChannel) Close(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if e := c.rtpConn.Close(); e != nil {
			err = e
		}
		if c.rtcpConn != nil {
			if e := c.rtcpConn.Close(); e != nil && err == nil {
				err = e
			}
		}
		c.mu.RLock()
		onClosed := c.onClosed
		c.mu.RUnlock()
		if onClosed != nil {
			onClosed(reason)
		}
	})
	return err
}
