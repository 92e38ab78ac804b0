package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyPayment(t *testing.T) {
	sig := SignPayment("secret", "order_1", "pay_1")

	assert.True(t, VerifyPayment("secret", "order_1", "pay_1", sig))
	assert.True(t, VerifyPayment("secret", "order_1", " pay_1 ", " "+sig))
	assert.False(t, VerifyPayment("other", "order_1", "pay_1", sig))
	assert.False(t, VerifyPayment("secret", "order_2", "pay_1", sig))
	assert.False(t, VerifyPayment("secret", "order_1", "", sig))
	assert.False(t, VerifyPayment("secret", "order_1", "pay_1", "not-hex"))
	assert.False(t, VerifyPayment("", "order_1", "pay_1", SignPayment("", "order_1", "pay_1")))
}
