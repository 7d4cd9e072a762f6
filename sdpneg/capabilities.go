// Package sdpneg implements the capability-intersection and SDP
// media-section helpers used by the offer/answer builder (spec §4.2),
// operating on github.com/pion/sdp/v3 types — the teacher's own SDP
// dependency (pkg/media_with_sdp/sdp_builder.go).
package sdpneg

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// Codec mirrors rtpsession.Codec; kept as an independent type so this
// package has no import-cycle back to the root package.
type Codec struct {
	PayloadType  uint8
	Name         string
	ClockRate    uint32
	Channels     int
	FormatParams string
}

// Matches implements the spec §4.2 rule: equal payload-type ids match
// outright; dynamic payload types (>=96) match by name+clockrate+params
// per RFC 3264.
func (c Codec) Matches(other Codec) bool {
	if c.PayloadType == other.PayloadType && c.PayloadType < 96 {
		return true
	}
	return c.Name == other.Name &&
		c.ClockRate == other.ClockRate &&
		c.FormatParams == other.FormatParams
}

// Intersect returns the subset of local that has a match in remote,
// preserving local's ordering (and therefore its priority), per spec §4.2.
func Intersect(local, remote []Codec) []Codec {
	var out []Codec
	for _, l := range local {
		for _, r := range remote {
			if l.Matches(r) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// ParseMediaCodecs extracts the codec list announced by a media section, in
// the order its m= line lists payload-type numbers (which is itself the
// announcer's priority order).
func ParseMediaCodecs(media *sdp.MediaDescription) []Codec {
	rtpmap := map[uint8]Codec{}
	fmtp := map[uint8]string{}

	for _, attr := range media.Attributes {
		switch attr.Key {
		case "rtpmap":
			pt, name, clock, ch, ok := parseRTPMap(attr.Value)
			if ok {
				rtpmap[pt] = Codec{PayloadType: pt, Name: name, ClockRate: clock, Channels: ch}
			}
		case "fmtp":
			pt, params, ok := parseFmtp(attr.Value)
			if ok {
				fmtp[pt] = params
			}
		}
	}

	var out []Codec
	for _, f := range media.MediaName.Formats {
		ptVal, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			continue
		}
		pt := uint8(ptVal)
		c, ok := rtpmap[pt]
		if !ok {
			// Statically-assigned payload type with no rtpmap line
			// (legal per RFC 3551 Table 4/5); name left blank, the
			// caller resolves it from the static table if needed.
			c = Codec{PayloadType: pt, ClockRate: staticClockRate(pt)}
		}
		if params, ok := fmtp[pt]; ok {
			c.FormatParams = params
		}
		out = append(out, c)
	}
	return out
}

// parseRTPMap parses an "a=rtpmap:<pt> <name>/<clock>[/<channels>]" value.
func parseRTPMap(value string) (pt uint8, name string, clock uint32, channels int, ok bool) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return 0, "", 0, 0, false
	}
	ptVal, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return 0, "", 0, 0, false
	}
	parts := strings.Split(fields[1], "/")
	name = parts[0]
	channels = 1
	if len(parts) >= 2 {
		c, err := strconv.ParseUint(parts[1], 10, 32)
		if err == nil {
			clock = uint32(c)
		}
	}
	if len(parts) >= 3 {
		c, err := strconv.Atoi(parts[2])
		if err == nil {
			channels = c
		}
	}
	return uint8(ptVal), name, clock, channels, true
}

// parseFmtp parses an "a=fmtp:<pt> <params>" value.
func parseFmtp(value string) (pt uint8, params string, ok bool) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return 0, "", false
	}
	ptVal, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return 0, "", false
	}
	return uint8(ptVal), fields[1], true
}

// staticClockRate returns the RFC 3551 fixed clock rate for statically
// assigned payload types this module knows about, 0 otherwise.
func staticClockRate(pt uint8) uint32 {
	switch pt {
	case 0, 8, 9:
		return 8000
	case 26: // JPEG, RFC 2435
		return 90000
	default:
		return 0
	}
}

// FindTelephoneEventPayloadType scans a media section's rtpmap attributes
// for "telephone-event" and returns its payload type, or ok=false if absent.
func FindTelephoneEventPayloadType(media *sdp.MediaDescription) (pt uint8, ok bool) {
	for _, attr := range media.Attributes {
		if attr.Key != "rtpmap" {
			continue
		}
		p, name, _, _, valid := parseRTPMap(attr.Value)
		if valid && strings.EqualFold(name, "telephone-event") {
			return p, true
		}
	}
	return 0, false
}

// ExtractDirection returns the sendrecv/sendonly/recvonly/inactive property
// attribute of a media section, defaulting to "sendrecv" per RFC 4566.
func ExtractDirection(media *sdp.MediaDescription) string {
	for _, attr := range media.Attributes {
		switch attr.Key {
		case "sendrecv", "sendonly", "recvonly", "inactive":
			return attr.Key
		}
	}
	return "sendrecv"
}

// ExtractMID returns a media section's a=mid value, if any.
func ExtractMID(media *sdp.MediaDescription) (string, bool) {
	for _, attr := range media.Attributes {
		if attr.Key == "mid" {
			return attr.Value, true
		}
	}
	return "", false
}

// ConnectionAddress returns the media section's own connection-information
// address if present, otherwise falls back to the session-level one.
func ConnectionAddress(sessDesc *sdp.SessionDescription, media *sdp.MediaDescription) string {
	if media.ConnectionInformation != nil && media.ConnectionInformation.Address != nil {
		return media.ConnectionInformation.Address.Address
	}
	if sessDesc.ConnectionInformation != nil && sessDesc.ConnectionInformation.Address != nil {
		return sessDesc.ConnectionInformation.Address.Address
	}
	return ""
}
