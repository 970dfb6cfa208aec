/**
 * @description
 * IP extraction and device fingerprinting for the verification endpoint.
 * The fingerprint is a stable hash over passive browser signals; it is not
 * meant to be tamper-proof, only cheap to compare across accounts.
 *
 * @dependencies
 * - crypto/sha256, encoding/hex, net, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// ExtractIP resolves the client IP. Header precedence: CF-Connecting-IP,
// then the first entry of X-Forwarded-For, then the connection's remote
// address.
func ExtractIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DeviceFingerprint hashes the user agent, accept-language header and the
// optional client-reported timezone into a hex digest.
func DeviceFingerprint(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	lang := r.Header.Get("Accept-Language")
	tz := r.URL.Query().Get("tz")
	sum := sha256.Sum256([]byte(ua + "||" + lang + "||" + tz))
	return hex.EncodeToString(sum[:])
}
