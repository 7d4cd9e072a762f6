package rtpsession

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, tracks ...*Track) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{
		LocalIP: "127.0.0.1",
		NewTransport: func(kind MediaKind) (Transport, error) {
			return newFakeTransport(10000 + int(kind)), nil
		},
		NewRTCPEngine: func(kind MediaKind, _ Transport) (RTCPEngine, error) {
			return &fakeEngine{}, nil
		},
	})
	require.NoError(t, err)
	for _, tr := range tracks {
		require.NoError(t, s.AddTrack(tr))
	}
	return s
}

// property 6 / scenario S5: an offered kind with no local track is still
// answered, with port 0 and no formats, rather than omitted or fatal.
func TestCreateAnswerRejectsIncompatibleKindGracefully(t *testing.T) {
	audioOnlyOffer := newTestSession(t, NewLocalTrack(KindAudio, []Codec{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
	}, DefaultRandomSource))
	offer, err := audioOnlyOffer.CreateOffer()
	require.NoError(t, err)

	// Manufacture an offer containing an extra video section, simulating a
	// peer that offers video this side cannot answer.
	offer = offer.WithMedia(audioOnlyOffer.buildMediaSection(NewLocalTrack(KindVideo, []Codec{
		{PayloadType: 96, Name: CodecVP8, ClockRate: 90000},
	}, DefaultRandomSource), "127.0.0.1"))

	answerer := newTestSession(t, NewLocalTrack(KindAudio, []Codec{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
	}, DefaultRandomSource)) // no local video track

	answer, err := answerer.CreateAnswer(offer)
	require.NoError(t, err)
	require.Len(t, answer.MediaDescriptions, 2)

	var sawVideo bool
	for _, m := range answer.MediaDescriptions {
		if m.MediaName.Media == "video" {
			sawVideo = true
			require.Equal(t, 0, m.MediaName.Port.Value)
			require.Empty(t, m.MediaName.Formats)
		}
	}
	require.True(t, sawVideo, "answer must still carry a video section")
}

// property 9: round-tripping an offer through set_remote_description on a
// mirror session produces an answer whose capabilities are a subset of the
// offerer's.
func TestSetRemoteDescriptionRoundTripSubset(t *testing.T) {
	a := newTestSession(t, NewLocalTrack(KindAudio, []Codec{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
		{PayloadType: 8, Name: "PCMA", ClockRate: 8000},
	}, DefaultRandomSource))
	b := newTestSession(t, NewLocalTrack(KindAudio, []Codec{
		{PayloadType: 8, Name: "PCMA", ClockRate: 8000},
	}, DefaultRandomSource))

	offer, err := a.CreateOffer()
	require.NoError(t, err)

	require.NoError(t, b.SetRemoteDescription(offer))
	answer, err := b.CreateAnswer(offer)
	require.NoError(t, err)

	require.NoError(t, a.SetRemoteDescription(answer))

	bAudio := b.LocalTrack(KindAudio)
	for _, c := range bAudio.Capabilities {
		found := false
		for _, oc := range a.LocalTrack(KindAudio).Capabilities {
			if oc.PayloadType == c.PayloadType {
				found = true
			}
		}
		require.True(t, found, "answer capability %+v must be a subset of the offerer's", c)
	}
}

// resolution (1): an incompatible video section must not block the audio
// section of the same remote description from being applied.
func TestSetRemoteDescriptionPerSectionIndependence(t *testing.T) {
	s := newTestSession(t,
		NewLocalTrack(KindAudio, []Codec{{PayloadType: 0, Name: "PCMU", ClockRate: 8000}}, DefaultRandomSource),
		NewLocalTrack(KindVideo, []Codec{{PayloadType: 96, Name: CodecVP8, ClockRate: 90000}}, DefaultRandomSource),
	)

	peer := newTestSession(t,
		NewLocalTrack(KindAudio, []Codec{{PayloadType: 0, Name: "PCMU", ClockRate: 8000}}, DefaultRandomSource),
		NewLocalTrack(KindVideo, []Codec{{PayloadType: 97, Name: CodecH264, ClockRate: 90000}}, DefaultRandomSource),
	)
	offer, err := peer.CreateOffer()
	require.NoError(t, err)

	err = s.SetRemoteDescription(offer)
	require.ErrorIs(t, err, ErrVideoIncompatible)

	// audio must still have been applied despite the video error.
	require.Equal(t, "PCMU", s.LocalTrack(KindAudio).Capabilities[0].Name)
}

// scenario S1 / spec §4.2, §4.3: SetRemoteDescription must derive the
// remote RTP/RTCP destination from the negotiated section so a session can
// send media right after a clean offer/answer exchange, without first
// needing to receive a datagram to learn the peer's address.
func TestSetRemoteDescriptionDerivesDestinationEndpoint(t *testing.T) {
	peer := newTestSession(t, NewLocalTrack(KindAudio, []Codec{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
	}, DefaultRandomSource))
	offer, err := peer.CreateOffer()
	require.NoError(t, err)

	s := newTestSession(t, NewLocalTrack(KindAudio, []Codec{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
	}, DefaultRandomSource))

	require.NoError(t, s.SetRemoteDescription(offer))

	s.mu.RLock()
	dest, ok := s.dest[KindAudio]
	s.mu.RUnlock()
	require.True(t, ok, "SetRemoteDescription must populate the destination endpoint")
	require.NotNil(t, dest.rtp)
	require.NotNil(t, dest.rtcp)
	require.Equal(t, "127.0.0.1:10000", dest.rtp.String())
	require.Equal(t, "127.0.0.1:10001", dest.rtcp.String(), "control endpoint is port+1 when RTCP is not muxed")
}

// resolution (2): a local-trackless kind announced by the peer must not
// crash SetRemoteDescription.
func TestSetRemoteDescriptionSkipsKindWithNoLocalTrack(t *testing.T) {
	s := newTestSession(t, NewLocalTrack(KindAudio, []Codec{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
	}, DefaultRandomSource))

	peer := newTestSession(t,
		NewLocalTrack(KindAudio, []Codec{{PayloadType: 0, Name: "PCMU", ClockRate: 8000}}, DefaultRandomSource),
		NewLocalTrack(KindVideo, []Codec{{PayloadType: 96, Name: CodecVP8, ClockRate: 90000}}, DefaultRandomSource),
	)
	offer, err := peer.CreateOffer()
	require.NoError(t, err)

	require.NotPanics(t, func() {
		err = s.SetRemoteDescription(offer)
	})
	require.NoError(t, err)
}
