// Package transform implements the rtpsession.Transform collaborator
// (the SRTP/SRTCP protect/unprotect leaf) over github.com/pion/srtp/v2's
// Context, grounded in the emiago-diago media session's use of the same
// library (media/media_session.go EncryptRTP/DecryptRTP/EncryptRTCP/DecryptRTCP).
package transform

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/srtp/v2"

	"github.com/nexmedia/rtpsession"
)

// SRTPTransform wraps one SRTP crypto context per direction (local
// encrypts outbound, remote decrypts inbound — distinct keys, per RFC
// 3711 §8.1) and exposes the four independent rtpsession.Transform leaves
// a SecurityContext needs.
type SRTPTransform struct {
	local  *srtp.Context
	remote *srtp.Context
}

// New builds an SRTPTransform from already-derived local/remote
// master key+salt pairs and a negotiated protection profile.
func New(localKey, localSalt, remoteKey, remoteSalt []byte, profile srtp.ProtectionProfile) (*SRTPTransform, error) {
	local, err := srtp.CreateContext(localKey, localSalt, profile)
	if err != nil {
		return nil, err
	}
	remote, err := srtp.CreateContext(remoteKey, remoteSalt, profile)
	if err != nil {
		return nil, err
	}
	return &SRTPTransform{local: local, remote: remote}, nil
}

// SecurityContext bundles the four transforms into an
// rtpsession.SecurityContext ready for Session.SetSecurityContext.
func (t *SRTPTransform) SecurityContext() rtpsession.SecurityContext {
	return rtpsession.SecurityContext{
		ProtectRTP:    t.protectRTP,
		UnprotectRTP:  t.unprotectRTP,
		ProtectRTCP:   t.protectRTCP,
		UnprotectRTCP: t.unprotectRTCP,
	}
}

func (t *SRTPTransform) protectRTP(buf []byte, declaredLen int) (int, error) {
	var hdr rtp.Header
	if _, err := hdr.Unmarshal(buf[:declaredLen]); err != nil {
		return 0, err
	}
	out, err := t.local.EncryptRTP(buf[:0:len(buf)], buf[:declaredLen], &hdr)
	if err != nil {
		return 0, err
	}
	return copyInto(buf, out)
}

func (t *SRTPTransform) unprotectRTP(buf []byte, declaredLen int) (int, error) {
	var hdr rtp.Header
	if _, err := hdr.Unmarshal(buf[:declaredLen]); err != nil {
		return 0, err
	}
	out, err := t.remote.DecryptRTP(buf[:0:len(buf)], buf[:declaredLen], &hdr)
	if err != nil {
		return 0, err
	}
	return copyInto(buf, out)
}

func (t *SRTPTransform) protectRTCP(buf []byte, declaredLen int) (int, error) {
	out, err := t.local.EncryptRTCP(buf[:0:len(buf)], buf[:declaredLen], nil)
	if err != nil {
		return 0, err
	}
	return copyInto(buf, out)
}

func (t *SRTPTransform) unprotectRTCP(buf []byte, declaredLen int) (int, error) {
	out, err := t.remote.DecryptRTCP(buf[:0:len(buf)], buf[:declaredLen], nil)
	if err != nil {
		return 0, err
	}
	return copyInto(buf, out)
}

// copyInto writes out back into buf and returns its length. EncryptRTP/
// DecryptRTP may return a buffer reallocated past buf's original capacity
// (e.g. auth tag growth exceeding the caller's reserved headroom); rather
// than silently truncating the result, that's reported as an error so the
// packet gets dropped instead of sent corrupt.
func copyInto(buf, out []byte) (int, error) {
	if len(out) > len(buf) {
		return 0, fmt.Errorf("transform: output length %d exceeds buffer capacity %d", len(out), len(buf))
	}
	copy(buf, out)
	return len(out), nil
}
