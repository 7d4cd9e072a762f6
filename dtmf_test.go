package rtpsession

import (
	"context"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

// scenario S4: digit 5, total_duration=1600, clock_rate=8000 — 3 start
// packets (marker 1,0,0), continuation packets every 50ms incrementing
// duration by 400 until >=1600, then 3 end packets, all sharing one
// timestamp.
func TestSendDTMFEventBurstShape(t *testing.T) {
	s, transport := sendableSession(t)

	err := s.SendDTMFEvent(context.Background(), 5, 10, 200*time.Millisecond)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(transport.sent), 3+3)

	var hdrs []rtp.Header
	for _, sent := range transport.sent {
		var h rtp.Header
		_, err := h.Unmarshal(sent.data)
		require.NoError(t, err)
		hdrs = append(hdrs, h)
	}

	// first three are the start repeats: marker set only on the first, all
	// three carrying duration = step (spec §4.6 step 4), not 0.
	require.True(t, hdrs[0].Marker)
	require.False(t, hdrs[1].Marker)
	require.False(t, hdrs[2].Marker)

	for _, h := range hdrs[:3] {
		ev, ok := decodeTelephonyEvent(payloadOf(t, transport, h))
		require.True(t, ok)
		require.NotZero(t, ev.Duration)
	}

	ts := hdrs[0].Timestamp
	for _, h := range hdrs {
		require.Equal(t, ts, h.Timestamp, "every packet in the burst shares the frozen timestamp")
	}

	last3 := hdrs[len(hdrs)-3:]
	for _, h := range last3 {
		ev, ok := decodeTelephonyEvent(payloadOf(t, transport, h))
		require.True(t, ok)
		require.True(t, ev.EndOfEvent)
	}
}

// property 8: SendDTMFEvent rejects a second concurrent call.
func TestSendDTMFEventMutualExclusion(t *testing.T) {
	s, _ := sendableSession(t)
	s.rtpEventInProgress.Store(true)

	err := s.SendDTMFEvent(context.Background(), 5, 10, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrDTMFInProgress)
}

// scenario/§4.6 step 5: cancelling ctx mid-burst stops the burst outright —
// no end-of-event packets are emitted, only the mandatory start repeats
// already sent before the cancel was observed.
func TestSendDTMFEventCancellable(t *testing.T) {
	s, transport := sendableSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SendDTMFEvent(ctx, 5, 10, time.Second)
	require.NoError(t, err)
	require.Equal(t, dtmfDuplicateCount, len(transport.sent))

	for _, sent := range transport.sent {
		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(sent.data))
		ev, ok := decodeTelephonyEvent(pkt.Payload)
		require.True(t, ok)
		require.False(t, ev.EndOfEvent)
	}
}

// the negotiated telephone-event payload type lives on the session, not on
// the local track's capability list (spec §3 remote_dtmf_payload_id) — a
// local track never carries a telephone-event entry of its own.
func TestSendDTMFEventUsesNegotiatedPayloadType(t *testing.T) {
	s, transport := sendableSession(t)
	s.remoteDTMFPayloadType.Store(110)

	err := s.SendDTMFEvent(context.Background(), 5, 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, transport.sent)

	var h rtp.Header
	_, err = h.Unmarshal(transport.sent[0].data)
	require.NoError(t, err)
	require.Equal(t, uint8(110), h.PayloadType)
}

func payloadOf(t *testing.T, transport *fakeTransport, h rtp.Header) []byte {
	t.Helper()
	for _, sent := range transport.sent {
		var candidate rtp.Packet
		require.NoError(t, candidate.Unmarshal(sent.data))
		if candidate.SequenceNumber == h.SequenceNumber {
			return candidate.Payload
		}
	}
	return nil
}
