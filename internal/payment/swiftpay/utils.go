package swiftpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyCallbackSignature checks that a checkout callback really came from
// SwiftPay. The signature covers "<sessionID>|<status>|<reference>".
func VerifyCallbackSignature(key, sessionID, status, reference, receivedHMAC string) bool {
	payload := sessionID + "|" + status + "|" + reference
	expectedHMAC := Hmac256([]byte(payload), []byte(key))
	return hmac.Equal([]byte(receivedHMAC), []byte(expectedHMAC))
}
