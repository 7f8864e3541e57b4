package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

func TestVerifyAcceptsHexAndBase64(t *testing.T) {
	body := []byte(`{"id":"P1","status":"PAID","amount":100}`)
	digest := sign("tenant-secret", body)
	v := NewVerifier(false)

	assert.True(t, v.Verify("tenant-secret", body, hex.EncodeToString(digest)))
	assert.True(t, v.Verify("tenant-secret", body, base64.StdEncoding.EncodeToString(digest)))
	assert.False(t, v.Verify("other-secret", body, hex.EncodeToString(digest)))
}

func TestVerifyAcceptsKeyValueHeaders(t *testing.T) {
	body := []byte(`{"id":"P1"}`)
	hexSig := hex.EncodeToString(sign("k", body))
	v := NewVerifier(false)

	headers := []string{
		"t=1700000000,s=" + hexSig,
		"t=1700000000, s1=" + hexSig,
		"signature=" + hexSig,
		"sig=" + base64.StdEncoding.EncodeToString(sign("k", body)),
		"sha256=" + hexSig,
		"v=1;sha256=" + hexSig,
	}
	for _, header := range headers {
		assert.True(t, v.Verify("k", body, header), "header %q", header)
	}
	assert.False(t, v.Verify("k", body, "t=1,unknown="+hexSig))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"id":"P1","amount":100.00}`)
	header := hex.EncodeToString(sign("k", body))
	tampered := []byte(`{"id":"P1","amount":900.00}`)
	v := NewVerifier(false)

	require.True(t, v.Verify("k", body, header))
	assert.False(t, v.Verify("k", tampered, header))
	assert.True(t, v.Verify("k", tampered, hex.EncodeToString(sign("k", tampered))))
}

func TestVerifyFailsClosedWithoutSecretOrHeader(t *testing.T) {
	body := []byte(`{}`)
	v := NewVerifier(false)

	assert.False(t, v.Verify("", body, "anything"))
	assert.False(t, v.Verify("k", body, "  "))
}

func TestVerifyAllowUnsigned(t *testing.T) {
	body := []byte(`{}`)
	v := NewVerifier(true)

	assert.True(t, v.Verify("", body, ""))
	assert.True(t, v.Verify("k", body, ""))
	assert.False(t, v.Verify("k", body, "deadbeef"))
}

func TestSignatureCandidates(t *testing.T) {
	got := SignatureCandidates("t=1,s=abc,sig=sha256=def")
	assert.Equal(t, []string{"t=1,s=abc,sig=sha256=def", "abc", "sha256=def", "def"}, got)
	assert.Nil(t, SignatureCandidates(""))
}
