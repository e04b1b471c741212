package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of message under secret.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the checkout callback signature over "orderID|paymentID".
func VerifyPaymentSignature(processorOrderID, paymentID, signature, secret string) bool {
	return verify(secret, []byte(processorOrderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks the signature of a raw webhook body.
func VerifyWebhookSignature(rawBody []byte, signature, secret string) bool {
	return verify(secret, rawBody, signature)
}

func verify(secret string, message []byte, signature string) bool {
	if secret == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(given) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(message)
	return hmac.Equal(given, mac.Sum(nil))
}
