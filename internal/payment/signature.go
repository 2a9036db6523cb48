package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignCheckout returns the hex HMAC-SHA256 the gateway attaches to a completed
// checkout: the message is orderID + "|" + paymentID keyed by the API key secret.
func SignCheckout(orderID, paymentID, apiSecret string) string {
	return sign([]byte(orderID+"|"+paymentID), apiSecret)
}

// SignWebhook returns the hex HMAC-SHA256 of the exact webhook body.
func SignWebhook(rawBody []byte, webhookSecret string) string {
	return sign(rawBody, webhookSecret)
}

// VerifyCheckoutSignature reports whether signature authenticates the
// (orderID, paymentID) pair. A mismatch is a normal outcome, not an error.
func VerifyCheckoutSignature(orderID, paymentID, signature, apiSecret string) bool {
	if apiSecret == "" || signature == "" {
		return false
	}
	expected := SignCheckout(orderID, paymentID, apiSecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature reports whether signature authenticates rawBody. The
// body must be the bytes as received; re-encoded JSON will not match.
func VerifyWebhookSignature(rawBody []byte, signature, webhookSecret string) bool {
	if webhookSecret == "" || signature == "" {
		return false
	}
	expected := SignWebhook(rawBody, webhookSecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
