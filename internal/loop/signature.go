package loop

import (
	"crypto/sha256"
	"encoding/hex"
)

// Signature fingerprints a condition: the same loop reporting the same message
// for the same target always yields the same signature.
func Signature(loopName, targetType, targetID, message string) string {
	sum := sha256.Sum256([]byte(loopName + ":" + targetType + ":" + targetID + ":" + message))
	return hex.EncodeToString(sum[:])
}
