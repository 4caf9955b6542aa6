package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateProbeID creates a short random identifier for one probe run, used
// to correlate debug output when several runs are captured together.
func GenerateProbeID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
