package sdpneg

import (
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecMatchesStaticPayloadType(t *testing.T) {
	a := Codec{PayloadType: 0, Name: "PCMU", ClockRate: 8000}
	b := Codec{PayloadType: 0, Name: "ignored", ClockRate: 0}
	assert.True(t, a.Matches(b))
}

func TestCodecMatchesDynamicByNameClockParams(t *testing.T) {
	a := Codec{PayloadType: 96, Name: "VP8", ClockRate: 90000}
	b := Codec{PayloadType: 97, Name: "VP8", ClockRate: 90000}
	assert.True(t, a.Matches(b))

	c := Codec{PayloadType: 98, Name: "H264", ClockRate: 90000}
	assert.False(t, a.Matches(c))
}

func TestIntersectPreservesLocalOrder(t *testing.T) {
	local := []Codec{
		{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
		{PayloadType: 8, Name: "PCMA", ClockRate: 8000},
	}
	remote := []Codec{
		{PayloadType: 8, Name: "PCMA", ClockRate: 8000},
	}
	got := Intersect(local, remote)
	require.Len(t, got, 1)
	assert.Equal(t, "PCMA", got[0].Name)
}

func TestIntersectEmptyWhenNoMatch(t *testing.T) {
	local := []Codec{{PayloadType: 0, Name: "PCMU", ClockRate: 8000}}
	remote := []Codec{{PayloadType: 8, Name: "PCMA", ClockRate: 8000}}
	assert.Empty(t, Intersect(local, remote))
}

func buildTestMedia(rtpmaps []string, fmtps []string, formats []string) *sdp.MediaDescription {
	m := &sdp.MediaDescription{
		MediaName: sdp.MediaName{Formats: formats},
	}
	for _, v := range rtpmaps {
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "rtpmap", Value: v})
	}
	for _, v := range fmtps {
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "fmtp", Value: v})
	}
	return m
}

func TestParseMediaCodecsRTPMapAndFmtp(t *testing.T) {
	media := buildTestMedia(
		[]string{"96 VP8/90000", "101 telephone-event/8000"},
		[]string{"96 max-fr=30"},
		[]string{"96", "101"},
	)
	codecs := ParseMediaCodecs(media)
	require.Len(t, codecs, 2)
	assert.Equal(t, "VP8", codecs[0].Name)
	assert.Equal(t, uint32(90000), codecs[0].ClockRate)
	assert.Equal(t, "max-fr=30", codecs[0].FormatParams)
	assert.Equal(t, "telephone-event", codecs[1].Name)
}

func TestParseMediaCodecsStaticPayloadTypeWithoutRTPMap(t *testing.T) {
	media := buildTestMedia(nil, nil, []string{"0"})
	codecs := ParseMediaCodecs(media)
	require.Len(t, codecs, 1)
	assert.Equal(t, uint8(0), codecs[0].PayloadType)
	assert.Equal(t, uint32(8000), codecs[0].ClockRate)
}

func TestFindTelephoneEventPayloadType(t *testing.T) {
	media := buildTestMedia([]string{"0 PCMU/8000", "101 telephone-event/8000"}, nil, []string{"0", "101"})
	pt, ok := FindTelephoneEventPayloadType(media)
	require.True(t, ok)
	assert.Equal(t, uint8(101), pt)

	noneMedia := buildTestMedia([]string{"0 PCMU/8000"}, nil, []string{"0"})
	_, ok = FindTelephoneEventPayloadType(noneMedia)
	assert.False(t, ok)
}

func TestExtractDirectionDefaultsSendRecv(t *testing.T) {
	media := &sdp.MediaDescription{}
	assert.Equal(t, "sendrecv", ExtractDirection(media))

	media.Attributes = []sdp.Attribute{{Key: "recvonly"}}
	assert.Equal(t, "recvonly", ExtractDirection(media))
}

func TestExtractMID(t *testing.T) {
	media := &sdp.MediaDescription{Attributes: []sdp.Attribute{{Key: "mid", Value: "0"}}}
	mid, ok := ExtractMID(media)
	require.True(t, ok)
	assert.Equal(t, "0", mid)

	_, ok = ExtractMID(&sdp.MediaDescription{})
	assert.False(t, ok)
}

func TestConnectionAddressFallsBackToSessionLevel(t *testing.T) {
	sess := &sdp.SessionDescription{
		ConnectionInformation: &sdp.ConnectionInformation{Address: &sdp.Address{Address: "1.2.3.4"}},
	}
	media := &sdp.MediaDescription{}
	assert.Equal(t, "1.2.3.4", ConnectionAddress(sess, media))

	media.ConnectionInformation = &sdp.ConnectionInformation{Address: &sdp.Address{Address: "5.6.7.8"}}
	assert.Equal(t, "5.6.7.8", ConnectionAddress(sess, media))
}
