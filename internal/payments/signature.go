package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayment computes the callback signature the gateway is expected to
// produce for a completed payment: HMAC-SHA256 over "<orderID>|<paymentID>"
// keyed with the server-held secret, hex encoded.
func SignPayment(orderID, paymentID string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature reports whether the supplied signature matches the
// expected one. Comparison is constant-time.
func VerifyPaymentSignature(orderID, paymentID, signature string, secret []byte) bool {
	expected := SignPayment(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
