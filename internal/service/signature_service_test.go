package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	secretKey := "my-secret-key"
	payload := []byte(`{"event_id":"evt_1","status":"COMPLETED"}`)

	signature := svc.Sign(secretKey, payload)

	assert.Regexp(t, `^[0-9a-f]{64}$`, signature, "signature should be 64-char lowercase hex (SHA-256)")
	assert.True(t, svc.Verify(secretKey, payload, signature))
}

func TestHMACSignatureService_VerifyFails(t *testing.T) {
	svc := NewHMACSignatureService()
	signature := svc.Sign("correct-key", []byte("original payload"))

	tests := []struct {
		name      string
		key       string
		payload   string
		signature string
	}{
		{"wrong key", "wrong-key", "original payload", signature},
		{"tampered payload", "correct-key", "tampered payload", signature},
		{"garbage signature", "correct-key", "original payload", "invalidsignature"},
		{"empty signature", "correct-key", "original payload", ""},
		{"truncated signature", "correct-key", "original payload", signature[:32]},
		{"non-hex signature", "correct-key", "original payload", "zz" + signature[2:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, svc.Verify(tt.key, []byte(tt.payload), tt.signature))
		})
	}
}

func TestHMACSignatureService_VerifyUppercaseHex(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte(`{"id":"po_1","status":"paid"}`)
	signature := svc.Sign("whsec", payload)

	assert.True(t, svc.Verify("whsec", payload, strings.ToUpper(signature)))
}

func TestHMACSignatureService_DeterministicSign(t *testing.T) {
	svc := NewHMACSignatureService()
	assert.Equal(t, svc.Sign("key", []byte("data")), svc.Sign("key", []byte("data")))
}

func TestTimestampedPayload(t *testing.T) {
	assert.Equal(t, `1708092000.{"a":1}`, string(TimestampedPayload(1708092000, []byte(`{"a":1}`))))
	assert.Equal(t, "5.", string(TimestampedPayload(5, nil)))
}
