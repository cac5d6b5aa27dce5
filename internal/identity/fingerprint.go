package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// FingerprintGenerator computes the time-bound HMAC fingerprint that
// authenticated requests carry in their headers. Fingerprints embed the
// current timestamp in both key and message, so a fresh one must be computed
// for every request.
type FingerprintGenerator struct {
	now   func() time.Time
	delay time.Duration
}

// NewFingerprintGenerator returns a generator using the wall clock and the
// short pre-computation delay the backend's freshness window requires.
func NewFingerprintGenerator() *FingerprintGenerator {
	return &FingerprintGenerator{
		now:   time.Now,
		delay: 100 * time.Millisecond,
	}
}

// NewFingerprintGeneratorAt returns a generator with a fixed clock and no
// delay, for tests.
func NewFingerprintGeneratorAt(now func() time.Time) *FingerprintGenerator {
	return &FingerprintGenerator{now: now}
}

// Compute returns the hex-encoded HMAC-SHA256 fingerprint and the millisecond
// timestamp it was computed for. The key is the timestamp itself; the message
// is timestamp + instant ID + msisdn.
func (g *FingerprintGenerator) Compute(instantID, msisdn string) (fingerprint, timestamp string) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	timestamp = strconv.FormatInt(g.now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(timestamp))
	mac.Write([]byte(timestamp + instantID + msisdn))
	return hex.EncodeToString(mac.Sum(nil)), timestamp
}
