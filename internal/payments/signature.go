package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignPayment returns the hex HMAC-SHA256 of gatewayOrderID + "|" + gatewayPaymentID.
func SignPayment(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayment reports whether signature authenticates the gateway order and payment pair.
// An empty secret, payment id or signature never verifies.
func VerifyPayment(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	signature = strings.ToLower(strings.TrimSpace(signature))
	if secret == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(SignPayment(secret, strings.TrimSpace(gatewayOrderID), gatewayPaymentID))
	return hmac.Equal(provided, expected)
}
