package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// HMACSignatureService signs payout notifications and checks provider
// webhook signatures. Signatures are hex HMAC-SHA256.
type HMACSignatureService struct{}

func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign returns the lowercase hex MAC of payload.
func (s *HMACSignatureService) Sign(secret string, payload []byte) string {
	return hex.EncodeToString(macOf(secret, payload))
}

// Verify accepts hex in either case. Input that does not decode to a
// full SHA-256 MAC fails.
func (s *HMACSignatureService) Verify(secret string, payload []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(macOf(secret, payload), got)
}

func macOf(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// TimestampedPayload is the signed form of a notification body:
// "<unix seconds>.<body>".
func TimestampedPayload(timestamp int64, body []byte) []byte {
	out := strconv.AppendInt(nil, timestamp, 10)
	out = append(out, '.')
	return append(out, body...)
}
