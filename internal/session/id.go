package session

import (
	"crypto/rand"
	"fmt"
	"time"
)

const idSuffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
const idSuffixLen = 8

// NewSessionID generates a session identifier of the form
// sess_{unixMillis}_{random suffix}. Timestamp plus randomness, not
// collision-proof, which is acceptable for this use.
func NewSessionID() (string, error) {
	buf := make([]byte, idSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = idSuffixCharset[int(b)%len(idSuffixCharset)]
	}
	return fmt.Sprintf("sess_%d_%s", time.Now().UnixMilli(), buf), nil
}
