package rtpsession

import (
	"github.com/pion/rtp/codecs"
)

// frameFragmenter splits one media frame into the ordered RTP payloads it
// must be carried as, never exceeding RTPMaxPayload per payload (spec §4.5
// steps 3-4, §8 property 4). The last element is always the final
// fragment of the frame, and the caller marks it with the marker bit per
// property 5.
type frameFragmenter interface {
	Fragment(frame []byte) [][]byte
}

// audioFragmenter carries one frame per packet, splitting only if a frame
// exceeds RTPMaxPayload (rare for narrowband codecs, but the bound is a
// hard invariant regardless of codec).
type audioFragmenter struct{}

func (audioFragmenter) Fragment(frame []byte) [][]byte {
	if len(frame) <= RTPMaxPayload {
		return [][]byte{frame}
	}
	var out [][]byte
	for len(frame) > 0 {
		n := RTPMaxPayload
		if n > len(frame) {
			n = len(frame)
		}
		out = append(out, frame[:n])
		frame = frame[n:]
	}
	return out
}

// payloaderFragmenter adapts a github.com/pion/rtp/codecs.Payloader (the
// same VP8/H.264 fragmenters pion's own WebRTC track implementations use,
// other_examples/04b1e787_viamrobotics-rdk__gostream-webrtc_track.go) to
// the frameFragmenter interface.
type payloaderFragmenter struct {
	p rtpPayloader
}

// rtpPayloader mirrors github.com/pion/rtp's Payloader interface locally so
// this file only needs to name the codecs package, not the root rtp one.
type rtpPayloader interface {
	Payload(mtu uint16, payload []byte) [][]byte
}

func (f payloaderFragmenter) Fragment(frame []byte) [][]byte {
	return f.p.Payload(uint16(RTPMaxPayload), frame)
}

// newVP8Fragmenter builds the VP8 fragmenter (RFC 7741 payload descriptor),
// delegating the wire format to pion's own codec package.
func newVP8Fragmenter() frameFragmenter {
	return payloaderFragmenter{p: &codecs.VP8Payloader{}}
}

// newH264Fragmenter builds the H.264 fragmenter (FU-A, RFC 6184 §5.8),
// delegating the wire format to pion's own codec package.
func newH264Fragmenter() frameFragmenter {
	return payloaderFragmenter{p: &codecs.H264Payloader{}}
}

// jpegFragmenter implements the RFC 2435 minimal baseline JPEG RTP
// payload: a per-packet JPEG header (type/Q/width/height + fragment
// offset) prefixed to each chunk of scan data. No library in the corpus
// carries an RFC 2435 payloader (pion ships VP8/H264/VP9/Opus/G7xx only,
// per codecs.VP8Payloader etc.) so this is hand-rolled against the RFC,
// scoped to the minimal baseline profile SPEC_FULL.md §4.5 carries forward
// (single scan, no restart markers, Q>=128 quantization tables appended
// with the first fragment only).
type jpegFragmenter struct {
	typeCode byte
	quality  byte
	width    byte // in 8-pixel blocks, per RFC 2435 §3.1
	height   byte
	qtables  []byte
}

func newJPEGFragmenter(width, height int, quality byte, qtables []byte) frameFragmenter {
	return jpegFragmenter{
		typeCode: 1,
		quality:  quality,
		width:    byte(width / 8),
		height:   byte(height / 8),
		qtables:  qtables,
	}
}

const jpegHeaderLength = 8

func (f jpegFragmenter) Fragment(frame []byte) [][]byte {
	var out [][]byte
	offset := 0
	for offset < len(frame) || (offset == 0 && len(frame) == 0) {
		headerLen := jpegHeaderLength
		includeQ := offset == 0 && f.quality >= 128 && len(f.qtables) > 0
		if includeQ {
			headerLen += 4 + len(f.qtables)
		}

		room := RTPMaxPayload - headerLen
		if room < 1 {
			room = 1
		}
		n := len(frame) - offset
		if n > room {
			n = room
		}

		buf := make([]byte, headerLen+n)
		buf[0] = 0
		buf[1] = byte(offset >> 16)
		buf[2] = byte(offset >> 8)
		buf[3] = byte(offset)
		buf[4] = f.typeCode
		buf[5] = f.quality
		buf[6] = f.width
		buf[7] = f.height

		pos := jpegHeaderLength
		if includeQ {
			buf[pos] = 0
			buf[pos+1] = 0
			buf[pos+2] = 0
			buf[pos+3] = byte(len(f.qtables))
			copy(buf[pos+4:], f.qtables)
			pos += 4 + len(f.qtables)
		}
		copy(buf[pos:], frame[offset:offset+n])

		out = append(out, buf)
		offset += n
		if len(frame) == 0 {
			break
		}
	}
	return out
}

// fragmenterFor returns the fragmenter appropriate for a codec name, per
// spec §4.5 (audio is frame-per-packet; VP8/H.264/JPEG fragment per their
// RTP payload formats).
func fragmenterFor(codec Codec, jpegWidth, jpegHeight int, jpegQuality byte, jpegQTables []byte) frameFragmenter {
	switch codec.Name {
	case CodecVP8:
		return newVP8Fragmenter()
	case CodecH264:
		return newH264Fragmenter()
	case CodecJPEG:
		return newJPEGFragmenter(jpegWidth, jpegHeight, jpegQuality, jpegQTables)
	default:
		return audioFragmenter{}
	}
}
