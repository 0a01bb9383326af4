package utils

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

var refundNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8e-9a51-2f4c8d7e0b19")

// GenerateID returns a random identifier with the given prefix.
func GenerateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// RefundRef derives the wallet reference for refunding one bid. The same
// auction and bid position always produce the same reference, so a replayed
// credit is recognised by the wallet as already applied.
func RefundRef(auctionID string, seq int) string {
	key := auctionID + ":" + strconv.Itoa(seq)
	return "refund_" + uuid.NewSHA1(refundNamespace, []byte(key)).String()
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
