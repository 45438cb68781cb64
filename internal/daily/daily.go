package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in loc (UTC when nil).
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// Seed returns a deterministic sequence seed for a date using HMAC(salt, YYYY-MM-DD).
// Everyone playing the daily game on the same date draws the same sequences.
func Seed(dateKey, salt string) uint64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(dateKey))
	sum := h.Sum(nil)
	// first 8 bytes as the seed
	return binary.BigEndian.Uint64(sum[:8])
}
