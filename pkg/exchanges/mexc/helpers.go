package mexc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

var intervals = map[string]time.Duration{
	"Min1":   time.Minute,
	"Min5":   5 * time.Minute,
	"Min15":  15 * time.Minute,
	"Min30":  30 * time.Minute,
	"Min60":  time.Hour,
	"Hour4":  4 * time.Hour,
	"Hour8":  8 * time.Hour,
	"Day1":   24 * time.Hour,
	"Week1":  7 * 24 * time.Hour,
	"Month1": 30 * 24 * time.Hour,
}

// IntervalDuration maps a contract kline interval name ("Min15", "Hour4", ...) to its bucket size.
func IntervalDuration(interval string) (time.Duration, bool) {
	d, ok := intervals[interval]
	return d, ok
}
