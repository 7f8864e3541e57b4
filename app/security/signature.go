package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
)

const sha256Prefix = "sha256="

// Keys under which vendors place the signature inside a "k=v,k=v" header.
var signatureKeys = map[string]struct{}{
	"s":         {},
	"s1":        {},
	"signature": {},
	"sig":       {},
	"sha256":    {},
}

// Verifier checks HMAC-SHA256 webhook signatures.
//
// AllowUnsigned accepts requests that carry no signature or arrive for a
// tenant without a secret. It exists for sandbox environments only
// (GETNET_WEBHOOK_ALLOW_UNSIGNED) and every accepted unsigned request is
// logged at warning level.
type Verifier struct {
	allowUnsigned bool
	logger        logrus.FieldLogger
}

func NewVerifier(allowUnsigned bool) *Verifier {
	return &Verifier{
		allowUnsigned: allowUnsigned,
		logger:        factory.NewModuleLogger("signature-verifier"),
	}
}

func (v *Verifier) Verify(secret string, rawBody []byte, header string) bool {
	secret = strings.TrimSpace(secret)
	header = strings.TrimSpace(header)

	if secret == "" || header == "" {
		if v.allowUnsigned {
			v.logger.WithField("has_secret", secret != "").
				WithField("has_signature", header != "").
				Warn("Accepting unsigned webhook because allow-unsigned is enabled")
			return true
		}
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	digest := mac.Sum(nil)
	expectedB64 := []byte(base64.StdEncoding.EncodeToString(digest))
	expectedHex := []byte(hex.EncodeToString(digest))

	matched := false
	for _, candidate := range SignatureCandidates(header) {
		// Every candidate is compared so the loop length does not depend on
		// which one matches.
		if hmac.Equal([]byte(candidate), expectedB64) {
			matched = true
		}
		if hmac.Equal([]byte(strings.ToLower(candidate)), expectedHex) {
			matched = true
		}
	}
	return matched
}

// SignatureCandidates lists every value in header that may hold a signature:
// the raw value itself plus the values of known keys in a delimited
// "k=v" list. Values prefixed with "sha256=" are also tried without it.
func SignatureCandidates(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}

	seen := map[string]struct{}{}
	candidates := make([]string, 0, 4)
	var add func(value string)
	add = func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		candidates = append(candidates, value)
		if strings.HasPrefix(strings.ToLower(value), sha256Prefix) {
			add(value[len(sha256Prefix):])
		}
	}

	add(header)
	for _, part := range strings.FieldsFunc(header, func(r rune) bool { return r == ',' || r == ';' }) {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		if _, known := signatureKeys[strings.ToLower(strings.TrimSpace(key))]; known {
			add(value)
		}
	}

	return candidates
}
