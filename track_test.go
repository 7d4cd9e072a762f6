package rtpsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// sequentialRandomSource is the deterministic RandomSource spec §9 Design
// Notes calls for in tests, grounded in the teacher's
// media_builder functional tests, which inject a fixed seed rather than
// relying on crypto/rand.
type sequentialRandomSource struct {
	ssrc uint32
	seq  uint16
	ts   uint32
}

func (s sequentialRandomSource) SSRC() uint32  { return s.ssrc }
func (s sequentialRandomSource) Uint16() uint16 { return s.seq }
func (s sequentialRandomSource) Uint32() uint32 { return s.ts }

// property 1: local audio/video SSRCs are independent and within [0, 2^31).
func TestLocalTrackSSRCUniquenessPerLocality(t *testing.T) {
	audio := NewLocalTrack(KindAudio, nil, DefaultRandomSource)
	video := NewLocalTrack(KindVideo, nil, DefaultRandomSource)

	assert.Less(t, audio.SSRC(), uint32(1)<<31)
	assert.Less(t, video.SSRC(), uint32(1)<<31)
	assert.NotEqual(t, audio.SSRC(), video.SSRC())
}

// property 2: sequence numbers returned by consecutive nextSeq calls are
// seq0, seq0+1, ... mod 2^16.
func TestTrackSequenceMonotonicity(t *testing.T) {
	rnd := sequentialRandomSource{ssrc: 42, seq: 0xfffe, ts: 1000}
	tr := NewLocalTrack(KindAudio, nil, rnd)

	first := tr.nextSeq()
	second := tr.nextSeq()
	third := tr.nextSeq()

	assert.Equal(t, uint16(0xfffe), first)
	assert.Equal(t, uint16(0xffff), second)
	assert.Equal(t, uint16(0x0000), third) // wraps mod 2^16
}

// property 3: advanceTimestamp increases the track's timestamp by exactly
// d mod 2^32 and returns the pre-advance value.
func TestTrackTimestampAdvance(t *testing.T) {
	rnd := sequentialRandomSource{ssrc: 1, seq: 0, ts: 1000}
	tr := NewLocalTrack(KindAudio, nil, rnd)

	before := tr.advanceTimestamp(160)
	assert.Equal(t, uint32(1000), before)
	assert.Equal(t, uint32(1160), tr.Timestamp()) // no wrap yet

	_ = tr.advanceTimestamp(0xfffffff0) // 4294967280, wraps past 2^32
	assert.Equal(t, uint32(1144), tr.Timestamp())
}

func TestTrackSendingCodecRequiresCapability(t *testing.T) {
	tr := NewLocalTrack(KindAudio, nil, DefaultRandomSource)
	_, err := tr.sendingCodec()
	assert.ErrorIs(t, err, ErrMissingSendingFormat)

	tr.Capabilities = []Codec{{PayloadType: 0, Name: "PCMU", ClockRate: 8000}}
	codec, err := tr.sendingCodec()
	assert.NoError(t, err)
	assert.Equal(t, "PCMU", codec.Name)
}

func TestRemoteTrackSSRCLearnedOnce(t *testing.T) {
	tr := newRemoteTrack(KindAudio, []Codec{{PayloadType: 0, Name: "PCMU", ClockRate: 8000}})
	assert.Equal(t, uint32(0), tr.SSRC())

	tr.setSSRC(0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), tr.SSRC())

	// a later call must not overwrite an already-learned SSRC.
	tr.setSSRC(0x1)
	assert.Equal(t, uint32(0xDEADBEEF), tr.SSRC())
}
