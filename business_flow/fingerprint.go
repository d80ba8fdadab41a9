package businessflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/printshop-os/pricing-engine/models"
)

// RequestFingerprint returns a stable hex hash of the normalized request.
// Logically equal requests (same fields, any set ordering) hash equal, so
// the fingerprint can key audit lookups, idempotency tests, and the quote
// cache.
func RequestFingerprint(req models.CalculationRequest) string {
	normalized := req.Normalized()

	// Struct field order is fixed at compile time, so canonical JSON of the
	// normalized request is a stable byte representation.
	payload, err := json.Marshal(normalized)
	if err != nil {
		// CalculationRequest contains only marshalable fields; this is
		// unreachable with a well-formed request.
		panic(err)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
