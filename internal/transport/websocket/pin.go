package websocket

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrCertificateNotPinned = errors.New("server certificate not pinned")

// verifyPinned accepts the handshake when any certificate in the peer
// chain matches one of the fingerprints.
func verifyPinned(fingerprints []string) func(tls.ConnectionState) error {
	pins := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		pins[normalizeFingerprint(fp)] = struct{}{}
	}

	return func(cs tls.ConnectionState) error {
		for _, cert := range cs.PeerCertificates {
			sum := sha256.Sum256(cert.Raw)
			if _, ok := pins[hex.EncodeToString(sum[:])]; ok {
				return nil
			}
		}
		return ErrCertificateNotPinned
	}
}

// normalizeFingerprint accepts "AB:CD:..." as well as plain hex.
func normalizeFingerprint(fp string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fp), ":", ""))
}
