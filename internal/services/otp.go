package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// VerificationCodeLength is the number of digits in a delivery code.
const VerificationCodeLength = 6

// CodeVisibilityGrace is how long the code stays readable after delivery.
const CodeVisibilityGrace = 2 * time.Minute

// GenerateVerificationCode returns a random fixed-length numeric code. It is
// generated once at order creation and never regenerated for that order.
func GenerateVerificationCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < VerificationCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", VerificationCodeLength, n), nil
}

// CodeVisible reports whether the verification code may be shown to the
// buyer. It is derived on every read from the order's status and its
// authoritative delivery timestamp: visible while the order is not
// delivered, then for a short grace window after DeliveredAt, then hidden
// permanently.
func CodeVisible(status string, deliveredAt *time.Time, now time.Time) bool {
	if status != StatusDelivered {
		return true
	}
	if deliveredAt == nil {
		return false
	}
	return now.Sub(*deliveredAt) <= CodeVisibilityGrace
}
