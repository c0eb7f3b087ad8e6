package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Signature headers, checked in this order.
const (
	HeaderSignature        = "ElevenLabs-Signature"
	HeaderLegacySignature  = "X-ElevenLabs-Signature"
	HeaderGenericSignature = "X-Webhook-Signature"
)

// Verify checks the request signature against body. An empty secret disables
// verification.
//
// ElevenLabs-Signature uses "t=<timestamp>,v0=<hex>" with the HMAC computed
// over "<timestamp>.<body>"; the other headers carry the hex HMAC of the body,
// optionally prefixed with "sha256=".
func Verify(secret string, header http.Header, body []byte) bool {
	if secret == "" {
		return true
	}

	if raw := strings.TrimSpace(header.Get(HeaderSignature)); raw != "" {
		if timestamp, sig, ok := parseTimestamped(raw); ok {
			payload := make([]byte, 0, len(timestamp)+1+len(body))
			payload = append(payload, timestamp...)
			payload = append(payload, '.')
			payload = append(payload, body...)
			return equalHex(sign(secret, payload), sig)
		}
		return equalHex(sign(secret, body), strings.TrimPrefix(raw, "sha256="))
	}

	for _, name := range []string{HeaderLegacySignature, HeaderGenericSignature} {
		if raw := strings.TrimSpace(header.Get(name)); raw != "" {
			return equalHex(sign(secret, body), strings.TrimPrefix(raw, "sha256="))
		}
	}
	return false
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	return hex.EncodeToString(sign(secret, payload))
}

func sign(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseTimestamped(raw string) (timestamp, sig string, ok bool) {
	for _, part := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v0":
			sig = value
		}
	}
	return timestamp, sig, timestamp != "" && sig != ""
}

func equalHex(expected []byte, got string) bool {
	decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(got)))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, decoded)
}
