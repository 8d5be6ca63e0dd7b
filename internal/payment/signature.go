package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func signaturePayload(gatewayOrderID, paymentID string) string {
	return gatewayOrderID + "|" + paymentID
}

// Sign returns the hex HMAC-SHA256 the gateway sends with a completed payment.
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signaturePayload(gatewayOrderID, paymentID)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature and compares it in constant time.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signaturePayload(gatewayOrderID, paymentID)))
	return hmac.Equal(mac.Sum(nil), got)
}
