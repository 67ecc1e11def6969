package paystack

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ToKobo converts a naira amount to kobo minor units
func ToKobo(naira float64) int64 {
	return int64(math.Round(naira * 100))
}

// FromKobo converts kobo minor units to a naira amount
func FromKobo(kobo int64) float64 {
	return float64(kobo) / 100
}

// GenerateReference produces an opaque payment reference used as the
// idempotency key for a charge
func GenerateReference() string {
	return fmt.Sprintf("gdd_%d_%d", time.Now().UnixMilli(), rand.Intn(1000000))
}
